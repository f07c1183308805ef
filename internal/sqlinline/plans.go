package sqlinline

const QInsertPlan = `--sql 0f786719-0fba-4732-a444-0e2d22ad687c
insert into plans (id, business_info, generated_plan, created_at, updated_at, share_token, editable)
values ($1::uuid, $2::jsonb, $3::jsonb, $4::timestamptz, $5::timestamptz, $6::text, $7::boolean);
`

const QSelectPlanByID = `--sql bbeb5e8a-78f6-4045-9275-28230295f3b0
select id::text, business_info, generated_plan, created_at, updated_at, share_token, editable
from plans
where id = $1::uuid;
`

const QSelectPlanByShareToken = `--sql f7b4060d-145a-41b2-bf97-29486a268c8d
select id::text, business_info, generated_plan, created_at, updated_at, share_token, editable
from plans
where share_token = $1::text;
`

// QReplacePlan swaps generated_plan and moves updated_at strictly forward,
// even when two edits land within the same clock tick. $3 is the optional
// expected updated_at.
const QReplacePlan = `--sql 15ee82ea-50bd-408b-a8bd-cf4e0478ff45
update plans
set generated_plan = $2::jsonb,
    updated_at = greatest(now(), updated_at + interval '1 microsecond')
where id = $1::uuid
  and ($3::timestamptz is null or updated_at = $3::timestamptz)
returning id::text, business_info, generated_plan, created_at, updated_at, share_token, editable;
`

const QSetPlanShareToken = `--sql c3966969-8afb-47f4-9fb2-660d91354f68
update plans
set share_token = $2::text
where id = $1::uuid;
`

const QPlanExists = `--sql f312ea27-a142-45a1-8f94-788e8611ed83
select exists (select 1 from plans where id = $1::uuid);
`
