package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"atelier/api/internal/blueprint"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// -- users ------------------------------------------------------------------

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name, email FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	insertUser := `
		INSERT INTO users (display_name, email)
		VALUES ($1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.atelier.dev'))
		RETURNING id, display_name, email
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name).Scan(&user.ID, &user.DisplayName, &user.Email); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT id, display_name, email FROM users WHERE id=$1`, userID).
		Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// -- workshops --------------------------------------------------------------

func (s *PostgresStore) InsertWorkshop(ctx context.Context, workshop Workshop) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workshops (id, owner_id, share_id, name)
		VALUES ($1, $2, $3, $4)
	`, workshop.ID, workshop.OwnerID, workshop.ShareID, workshop.Name)
	if err != nil {
		return fmt.Errorf("insert workshop: %w", err)
	}
	return nil
}

const workshopColumns = `id, owner_id, share_id, name, current_content, created_at, updated_at`

func (s *PostgresStore) scanWorkshop(row *sql.Row) (Workshop, error) {
	var workshop Workshop
	var content []byte
	err := row.Scan(&workshop.ID, &workshop.OwnerID, &workshop.ShareID, &workshop.Name,
		&content, &workshop.CreatedAt, &workshop.UpdatedAt)
	if err != nil {
		return Workshop{}, err
	}
	if len(content) > 0 {
		var bp blueprint.Blueprint
		if err := json.Unmarshal(content, &bp); err != nil {
			return Workshop{}, fmt.Errorf("decode workshop content: %w", err)
		}
		workshop.CurrentContent = &bp
	}
	return workshop, nil
}

func (s *PostgresStore) GetWorkshop(ctx context.Context, id string) (Workshop, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE id=$1`, id)
	return s.scanWorkshop(row)
}

func (s *PostgresStore) GetWorkshopByShareID(ctx context.Context, shareID string) (Workshop, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE share_id=$1`, shareID)
	return s.scanWorkshop(row)
}

func (s *PostgresStore) ListWorkshops(ctx context.Context) ([]Workshop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, share_id, name, created_at, updated_at
		FROM workshops
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list workshops: %w", err)
	}
	defer rows.Close()

	var workshops []Workshop
	for rows.Next() {
		var workshop Workshop
		if err := rows.Scan(&workshop.ID, &workshop.OwnerID, &workshop.ShareID, &workshop.Name,
			&workshop.CreatedAt, &workshop.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workshop: %w", err)
		}
		workshops = append(workshops, workshop)
	}
	return workshops, rows.Err()
}

// -- versions ---------------------------------------------------------------

// SaveVersion appends an immutable snapshot and advances the workshop's
// current content in one transaction. The workshop row is locked first so
// concurrent saves serialize at the store: sequence numbers stay gapless
// and two collaborators can never receive the same one; the loser of the
// race simply becomes the next version.
func (s *PostgresStore) SaveVersion(ctx context.Context, workshopID string, bp blueprint.Blueprint) (BlueprintVersion, error) {
	content, err := json.Marshal(bp)
	if err != nil {
		return BlueprintVersion{}, fmt.Errorf("encode blueprint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BlueprintVersion{}, fmt.Errorf("begin save version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM workshops WHERE id=$1 FOR UPDATE`, workshopID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BlueprintVersion{}, err
		}
		return BlueprintVersion{}, fmt.Errorf("lock workshop: %w", err)
	}

	version := BlueprintVersion{WorkshopID: workshopID, Content: bp}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO blueprint_versions (workshop_id, sequence_number, content)
		SELECT $1, COALESCE(MAX(sequence_number), 0) + 1, $2
		FROM blueprint_versions WHERE workshop_id = $1
		RETURNING sequence_number, created_at
	`, workshopID, content).Scan(&version.SequenceNumber, &version.CreatedAt)
	if err != nil {
		return BlueprintVersion{}, fmt.Errorf("insert version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workshops SET current_content=$2, updated_at=NOW() WHERE id=$1
	`, workshopID, content); err != nil {
		return BlueprintVersion{}, fmt.Errorf("update current content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return BlueprintVersion{}, fmt.Errorf("commit save version: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, workshopID string, sequenceNumber int64) (BlueprintVersion, error) {
	var version BlueprintVersion
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT workshop_id, sequence_number, content, created_at
		FROM blueprint_versions
		WHERE workshop_id=$1 AND sequence_number=$2
	`, workshopID, sequenceNumber).Scan(&version.WorkshopID, &version.SequenceNumber, &content, &version.CreatedAt)
	if err != nil {
		return BlueprintVersion{}, err
	}
	if err := json.Unmarshal(content, &version.Content); err != nil {
		return BlueprintVersion{}, fmt.Errorf("decode version content: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, workshopID string) ([]VersionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence_number, content->>'title', created_at
		FROM blueprint_versions
		WHERE workshop_id=$1
		ORDER BY sequence_number DESC
	`, workshopID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []VersionMeta
	for rows.Next() {
		var meta VersionMeta
		if err := rows.Scan(&meta.SequenceNumber, &meta.Title, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, meta)
	}
	return versions, rows.Err()
}

// -- stakeholders -----------------------------------------------------------

func (s *PostgresStore) InsertStakeholder(ctx context.Context, stakeholder Stakeholder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stakeholders (id, workshop_id, role, email, status, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, stakeholder.ID, stakeholder.WorkshopID, stakeholder.Role, stakeholder.Email,
		stakeholder.Status, stakeholder.Comment)
	if err != nil {
		return fmt.Errorf("insert stakeholder: %w", err)
	}
	return nil
}

// UpdateStakeholderStatus reports whether a row was updated; an unknown id
// is not an error so concurrent removals stay races, not failures.
func (s *PostgresStore) UpdateStakeholderStatus(ctx context.Context, workshopID, stakeholderID, status, comment string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stakeholders SET status=$3, comment=$4
		WHERE workshop_id=$1 AND id=$2
	`, workshopID, stakeholderID, status, comment)
	if err != nil {
		return false, fmt.Errorf("update stakeholder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update stakeholder rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteStakeholder is idempotent: deleting an unknown id is a no-op.
func (s *PostgresStore) DeleteStakeholder(ctx context.Context, workshopID, stakeholderID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM stakeholders WHERE workshop_id=$1 AND id=$2
	`, workshopID, stakeholderID)
	if err != nil {
		return fmt.Errorf("delete stakeholder: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStakeholders(ctx context.Context, workshopID string) ([]Stakeholder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workshop_id, role, email, status, comment, created_at
		FROM stakeholders
		WHERE workshop_id=$1
		ORDER BY created_at ASC
	`, workshopID)
	if err != nil {
		return nil, fmt.Errorf("list stakeholders: %w", err)
	}
	defer rows.Close()

	var stakeholders []Stakeholder
	for rows.Next() {
		var st Stakeholder
		if err := rows.Scan(&st.ID, &st.WorkshopID, &st.Role, &st.Email, &st.Status, &st.Comment, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stakeholder: %w", err)
		}
		stakeholders = append(stakeholders, st)
	}
	return stakeholders, rows.Err()
}

func (s *PostgresStore) ApprovalCounts(ctx context.Context, workshopID string) (approved, total int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'yes'), COUNT(*)
		FROM stakeholders WHERE workshop_id=$1
	`, workshopID).Scan(&approved, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("approval counts: %w", err)
	}
	return approved, total, nil
}

// -- share links ------------------------------------------------------------

func (s *PostgresStore) UpsertSharePasscode(ctx context.Context, workshopID, passcodeHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (workshop_id, passcode_hash)
		VALUES ($1, $2)
		ON CONFLICT (workshop_id) DO UPDATE SET passcode_hash=EXCLUDED.passcode_hash, revoked_at=NULL
	`, workshopID, passcodeHash)
	if err != nil {
		return fmt.Errorf("upsert share passcode: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetShareLink(ctx context.Context, workshopID string) (ShareLink, error) {
	var link ShareLink
	err := s.db.QueryRowContext(ctx, `
		SELECT workshop_id, COALESCE(passcode_hash, ''), access_count, revoked_at
		FROM share_links WHERE workshop_id=$1
	`, workshopID).Scan(&link.WorkshopID, &link.PasscodeHash, &link.AccessCount, &link.RevokedAt)
	if err != nil {
		return ShareLink{}, err
	}
	return link, nil
}

func (s *PostgresStore) RevokeShareLink(ctx context.Context, workshopID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (workshop_id, revoked_at)
		VALUES ($1, NOW())
		ON CONFLICT (workshop_id) DO UPDATE SET revoked_at=NOW()
	`, workshopID)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementShareAccess(ctx context.Context, workshopID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET access_count = access_count + 1 WHERE workshop_id=$1
	`, workshopID)
	if err != nil {
		return fmt.Errorf("increment share access: %w", err)
	}
	return nil
}
