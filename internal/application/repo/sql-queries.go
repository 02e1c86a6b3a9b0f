package repo

// OUTBOX
const insertOutboxQuery = `
INSERT INTO outbox_emails (
  template_id, recipient, variables, status, queued_at, next_attempt_at, attempts
) VALUES ($1, $2, ($3)::jsonb, 'PENDING', $4, $4, 0)
RETURNING id
`

// $1 - now, $2 - limit, $3 - lease
const claimDueBatchSQL = `
WITH picked AS (
	SELECT id
	FROM outbox_emails
	WHERE status IN ('PENDING','RETRYING')
		AND next_attempt_at <= $1
		AND (locked_until IS NULL OR locked_until <= $1)
	ORDER BY next_attempt_at, id
	FOR UPDATE SKIP LOCKED
	LIMIT $2
)
UPDATE outbox_emails AS o
SET locked_until = $1::timestamptz + $3::interval
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.template_id, o.recipient, o.variables, o.status, o.queued_at,
	o.next_attempt_at, o.attempts, o.locked_until, o.last_error, o.sent_at;
`

const markSentSQL = `
UPDATE outbox_emails
SET status='SENT', sent_at=$2, locked_until=NULL, last_error=NULL
WHERE id=$1 AND status IN ('PENDING','RETRYING')`

// снимает lease без траты попытки: письмо не отправлялось
const releaseEmailSQL = `
UPDATE outbox_emails
SET locked_until=NULL
WHERE id=$1 AND status IN ('PENDING','RETRYING')`

// $3 IS NULL - попытки кончились, письмо уходит в FAILED
const markFailedSQL = `
UPDATE outbox_emails
SET attempts = attempts + 1,
	last_error = $2,
	locked_until = NULL,
	status = CASE WHEN $3::timestamptz IS NULL THEN 'FAILED' ELSE 'RETRYING' END,
	next_attempt_at = COALESCE($3::timestamptz, next_attempt_at)
WHERE id=$1 AND status IN ('PENDING','RETRYING')`

const retryEmailSQL = `
UPDATE outbox_emails
SET status='RETRYING', attempts=0, next_attempt_at=$2, locked_until=NULL
WHERE id=$1 AND status IN ('FAILED','RETRYING')`

const listEmailsSQL = `
SELECT id, template_id, recipient, variables, status, queued_at,
	next_attempt_at, attempts, locked_until, last_error, sent_at
FROM outbox_emails
WHERE ($1 = '' OR status = $1)
ORDER BY id DESC
LIMIT $2`

// USERS
const getUserByEmailSQL = `
SELECT id, email, name, password_hash, role, reminders_enabled, created_at
FROM users WHERE email = $1`

const insertUserSQL = `
INSERT INTO users (id, email, name, password_hash, role, reminders_enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
ON CONFLICT (email) DO NOTHING
RETURNING id`

const updateUserPasswordSQL = `UPDATE users SET password_hash=$2, updated_at=$3 WHERE id=$1`

const disableRemindersSQL = `UPDATE users SET reminders_enabled=FALSE, updated_at=$2 WHERE id=$1`

// PASSWORD RESETS
const supersedePasswordResetsSQL = `
UPDATE password_resets SET used_at=$2
WHERE user_id=$1 AND used_at IS NULL`

const insertPasswordResetSQL = `
INSERT INTO password_resets (user_id, email, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

const getPasswordResetByHashSQL = `
SELECT id, user_id, email, token_hash, expires_at, used_at, created_at
FROM password_resets WHERE token_hash=$1`

// условный апдейт: из параллельных запросов used_at проставит только один
const consumePasswordResetSQL = `
UPDATE password_resets SET used_at=$2
WHERE token_hash=$1 AND used_at IS NULL AND expires_at > $2
RETURNING user_id`

// INVITATIONS
const supersedeInvitationsSQL = `
UPDATE invitations SET used_at=$2
WHERE email=$1 AND used_at IS NULL`

const insertInvitationSQL = `
INSERT INTO invitations (email, role, invited_by, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

const getInvitationByHashSQL = `
SELECT id, email, role, invited_by, token_hash, expires_at, used_at, created_at
FROM invitations WHERE token_hash=$1`

const consumeInvitationSQL = `
UPDATE invitations SET used_at=$2
WHERE token_hash=$1 AND used_at IS NULL AND expires_at > $2
RETURNING email, role`

// EVENTS, REMINDERS, RSVP
const getEventSQL = `SELECT id, title, location, starts_at, visible FROM events WHERE id=$1`

const listEventsStartingBetweenSQL = `
SELECT id, title, location, starts_at, visible
FROM events
WHERE visible AND starts_at >= $1 AND starts_at < $2
ORDER BY starts_at`

const listReminderRecipientsSQL = `
SELECT u.id, u.email, u.name, u.password_hash, u.role, u.reminders_enabled, u.created_at
FROM users u
WHERE u.reminders_enabled
	AND NOT EXISTS (
		SELECT 1 FROM event_reminder_dispatches d
		WHERE d.event_id = $1 AND d.user_id = u.id AND d.days_before = $2
	)
ORDER BY u.email`

const insertReminderDispatchSQL = `
INSERT INTO event_reminder_dispatches (
	event_id, user_id, days_before,
	rsvp_token_hash, rsvp_expires_at,
	unsubscribe_token_hash, unsubscribe_expires_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_id, user_id, days_before) DO NOTHING
RETURNING id`

const getReminderByRsvpHashSQL = `
SELECT id, event_id, user_id, days_before, rsvp_token_hash, rsvp_expires_at, rsvp_used_at,
	unsubscribe_token_hash, unsubscribe_expires_at, unsubscribe_used_at, created_at
FROM event_reminder_dispatches WHERE rsvp_token_hash=$1`

const getVoteSQL = `SELECT vote FROM event_votes WHERE event_id=$1 AND user_id=$2`

// токен гасится только если термин видим и ещё не начался
const consumeRsvpSQL = `
UPDATE event_reminder_dispatches AS d
SET rsvp_used_at=$2
FROM events e
WHERE d.rsvp_token_hash=$1
	AND d.rsvp_used_at IS NULL
	AND d.rsvp_expires_at > $2
	AND e.id = d.event_id
	AND e.visible
	AND e.starts_at > $2
RETURNING d.event_id, d.user_id`

const upsertVoteSQL = `
INSERT INTO event_votes (event_id, user_id, vote, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (event_id, user_id) DO UPDATE SET vote=EXCLUDED.vote, updated_at=EXCLUDED.updated_at`

// повторный клик по ссылке отписки не ошибка, пока ссылка не истекла
const consumeUnsubscribeSQL = `
UPDATE event_reminder_dispatches
SET unsubscribe_used_at = COALESCE(unsubscribe_used_at, $2)
WHERE unsubscribe_token_hash=$1 AND unsubscribe_expires_at > $2
RETURNING user_id`

// CLEANUP
const deleteExpiredPasswordResetsSQL = `
DELETE FROM password_resets WHERE expires_at < $1 OR used_at < $1`

const deleteExpiredInvitationsSQL = `
DELETE FROM invitations WHERE expires_at < $1 OR used_at < $1`

const deleteExpiredDispatchesSQL = `
DELETE FROM event_reminder_dispatches
WHERE rsvp_expires_at < $1 AND unsubscribe_expires_at < $1`
