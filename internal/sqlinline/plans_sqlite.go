package sqlinline

// SQLite variants of the plan queries. Timestamps are RFC 3339 text in UTC
// and updated_at is computed by the caller inside a transaction.

const QSQLiteInsertPlan = `--sql 0c1dd38e-a4f9-4806-850c-ff4830d2f722
INSERT INTO plans (id, business_info, generated_plan, created_at, updated_at, share_token, editable)
VALUES (?, ?, ?, ?, ?, ?, ?);
`

const QSQLiteSelectPlanByID = `--sql 82dbfd95-f9a0-47af-9ae1-2d18c0e02185
SELECT id, business_info, generated_plan, created_at, updated_at, share_token, editable
FROM plans
WHERE id = ?;
`

const QSQLiteSelectPlanByShareToken = `--sql db9c1eeb-5d11-4479-8cae-b800e1dcf3e8
SELECT id, business_info, generated_plan, created_at, updated_at, share_token, editable
FROM plans
WHERE share_token = ?;
`

const QSQLiteSelectPlanUpdatedAt = `--sql 9347d30a-8a1f-41d7-94e1-08d90693f7a8
SELECT updated_at FROM plans WHERE id = ?;
`

const QSQLiteReplacePlan = `--sql 6f1b0826-db0f-4d14-b7f2-899e464aa7d2
UPDATE plans SET generated_plan = ?, updated_at = ? WHERE id = ?;
`

const QSQLiteSetPlanShareToken = `--sql 69eea85a-44f9-4a45-a295-ba2328c61c06
UPDATE plans SET share_token = ? WHERE id = ?;
`
