package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ieltsdesk/ieltsdesk/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// in-memory databases shared across the pool.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 60
	);

	CREATE TABLE IF NOT EXISTS questions (
		section_id INTEGER NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		instruction TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL DEFAULT 0,
		answer_key TEXT NOT NULL DEFAULT '""',
		PRIMARY KEY (section_id, id),
		FOREIGN KEY (section_id) REFERENCES sections(id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'assigned',
		started_at DATETIME,
		ends_at DATETIME,
		answers TEXT NOT NULL DEFAULT '{}',
		score REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (section_id, student_id),
		FOREIGN KEY (section_id) REFERENCES sections(id)
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref TEXT NOT NULL UNIQUE,
		attempt_id INTEGER NOT NULL,
		section_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		total_score REAL NOT NULL DEFAULT 0,
		band_score REAL NOT NULL DEFAULT 0,
		answers TEXT NOT NULL DEFAULT '{}',
		feedback TEXT,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertSection stores a section and its questions in one transaction.
func (s *Store) InsertSection(sec model.Section) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO sections (name, type, duration_minutes) VALUES (?, ?, ?)`,
		sec.Name, sec.Type, sec.DurationMinutes,
	)
	if err != nil {
		return 0, err
	}
	sectionID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, q := range sec.Questions {
		keyJSON, err := json.Marshal(q.Key)
		if err != nil {
			return 0, fmt.Errorf("marshal answer key %s: %w", q.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO questions (section_id, id, position, type, text, instruction, points, answer_key)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sectionID, q.ID, i, q.Type, q.Text, q.Instruction, q.Points, string(keyJSON),
		)
		if err != nil {
			return 0, err
		}
	}

	return sectionID, tx.Commit()
}

// GetSection returns a section with its questions in authored order.
func (s *Store) GetSection(id int64) (model.Section, error) {
	var sec model.Section
	err := s.db.QueryRow(
		`SELECT id, name, type, duration_minutes FROM sections WHERE id = ?`, id,
	).Scan(&sec.ID, &sec.Name, &sec.Type, &sec.DurationMinutes)
	if err == sql.ErrNoRows {
		return sec, model.ErrNotFound
	}
	if err != nil {
		return sec, err
	}

	rows, err := s.db.Query(
		`SELECT id, type, text, instruction, points, answer_key
		 FROM questions WHERE section_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return sec, err
	}
	defer rows.Close()
	for rows.Next() {
		var q model.Question
		var keyJSON string
		if err := rows.Scan(&q.ID, &q.Type, &q.Text, &q.Instruction, &q.Points, &keyJSON); err != nil {
			return sec, err
		}
		if err := json.Unmarshal([]byte(keyJSON), &q.Key); err != nil {
			return sec, fmt.Errorf("unmarshal answer key %s: %w", q.ID, err)
		}
		sec.Questions = append(sec.Questions, q)
	}
	return sec, rows.Err()
}

// ListSections returns all sections without their questions.
func (s *Store) ListSections() ([]model.Section, error) {
	rows, err := s.db.Query(`SELECT id, name, type, duration_minutes FROM sections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Type, &sec.DurationMinutes); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// SectionCount returns the number of sections in the database.
func (s *Store) SectionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sections`).Scan(&count)
	return count, err
}

// CreateAttempt assigns a section to a student. One live attempt exists per
// student and section; retakes go through reassignment, not re-creation.
func (s *Store) CreateAttempt(sectionID, studentID int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO attempts (section_id, student_id, status, created_at) VALUES (?, ?, 'assigned', ?)`,
		sectionID, studentID, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id int64) (model.Attempt, error) {
	var a model.Attempt
	var answersJSON string
	err := s.db.QueryRow(
		`SELECT id, section_id, student_id, status, started_at, ends_at, answers, score, created_at
		 FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.SectionID, &a.StudentID, &a.Status, &a.StartedAt, &a.EndsAt, &answersJSON, &a.Score, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, model.ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(answersJSON), &a.Answers); err != nil {
		return a, fmt.Errorf("unmarshal answers: %w", err)
	}
	return a, nil
}

// StartAttempt transitions assigned -> in_progress and stamps the window.
// Returns false when the attempt was not in the assigned state.
func (s *Store) StartAttempt(id int64, startedAt, endsAt time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE attempts SET status = 'in_progress', started_at = ?, ends_at = ?
		 WHERE id = ? AND status = 'assigned'`,
		startedAt, endsAt, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FinalizeSubmission atomically transitions the attempt to submitted and
// appends the Result row. The conditional update is the per-attempt mutual
// exclusion: of two concurrent submits, exactly one sees a row affected and
// exactly one Result is created. Returns the new result's ref.
func (s *Store) FinalizeSubmission(attemptID int64, answers model.AnswerSet, result model.Result) (string, error) {
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("marshal answers: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE attempts SET status = 'submitted', answers = ?, score = ?
		 WHERE id = ? AND status != 'submitted'`,
		string(answersJSON), result.Score, attemptID,
	)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", model.ErrInvalidState
	}

	ref := uuid.NewString()
	var feedbackJSON sql.NullString
	if result.Feedback != nil {
		b, err := json.Marshal(result.Feedback)
		if err != nil {
			return "", fmt.Errorf("marshal feedback: %w", err)
		}
		feedbackJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = tx.Exec(
		`INSERT INTO results (ref, attempt_id, section_id, student_id, score, total_score, band_score, answers, feedback, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref, attemptID, result.SectionID, result.StudentID,
		result.Score, result.TotalScore, result.BandScore,
		string(answersJSON), feedbackJSON, time.Now(),
	)
	if err != nil {
		return "", err
	}

	return ref, tx.Commit()
}

// ResetAttempt reassigns the attempt: back to assigned with answers, score,
// and timing cleared. Result rows are left untouched.
func (s *Store) ResetAttempt(id int64) error {
	res, err := s.db.Exec(
		`UPDATE attempts SET status = 'assigned', answers = '{}', score = 0, started_at = NULL, ends_at = NULL
		 WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetResult returns a result by ID.
func (s *Store) GetResult(id int64) (model.Result, error) {
	return s.scanResult(s.db.QueryRow(
		`SELECT id, ref, attempt_id, section_id, student_id, score, total_score, band_score, answers, feedback, submitted_at
		 FROM results WHERE id = ?`, id,
	))
}

// GetResultByRef returns a result by its public reference.
func (s *Store) GetResultByRef(ref string) (model.Result, error) {
	return s.scanResult(s.db.QueryRow(
		`SELECT id, ref, attempt_id, section_id, student_id, score, total_score, band_score, answers, feedback, submitted_at
		 FROM results WHERE ref = ?`, ref,
	))
}

func (s *Store) scanResult(row *sql.Row) (model.Result, error) {
	var r model.Result
	var answersJSON string
	var feedbackJSON sql.NullString
	err := row.Scan(&r.ID, &r.Ref, &r.AttemptID, &r.SectionID, &r.StudentID,
		&r.Score, &r.TotalScore, &r.BandScore, &answersJSON, &feedbackJSON, &r.SubmittedAt)
	if err == sql.ErrNoRows {
		return r, model.ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(answersJSON), &r.Answers); err != nil {
		return r, fmt.Errorf("unmarshal answers: %w", err)
	}
	if feedbackJSON.Valid {
		r.Feedback = &model.SectionEvaluation{}
		if err := json.Unmarshal([]byte(feedbackJSON.String), r.Feedback); err != nil {
			return r, fmt.Errorf("unmarshal feedback: %w", err)
		}
	}
	return r, nil
}

// ListResults returns all results for a student+section pair, oldest first.
// Reassignment preserves these rows; each submission adds one.
func (s *Store) ListResults(sectionID, studentID int64) ([]model.Result, error) {
	rows, err := s.db.Query(
		`SELECT id, ref, attempt_id, section_id, student_id, score, total_score, band_score, answers, feedback, submitted_at
		 FROM results WHERE section_id = ? AND student_id = ? ORDER BY submitted_at, id`,
		sectionID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var r model.Result
		var answersJSON string
		var feedbackJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.Ref, &r.AttemptID, &r.SectionID, &r.StudentID,
			&r.Score, &r.TotalScore, &r.BandScore, &answersJSON, &feedbackJSON, &r.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answersJSON), &r.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		if feedbackJSON.Valid {
			r.Feedback = &model.SectionEvaluation{}
			if err := json.Unmarshal([]byte(feedbackJSON.String), r.Feedback); err != nil {
				return nil, fmt.Errorf("unmarshal feedback: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpdateResultEvaluation fills in a result's AI evaluation after the fact
// (deferred evaluation when the provider was down at submit time).
func (s *Store) UpdateResultEvaluation(id int64, score, bandScore float64, feedback *model.SectionEvaluation, answers model.AnswerSet) error {
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE results SET score = ?, band_score = ?, feedback = ?, answers = ? WHERE id = ?`,
		score, bandScore, string(feedbackJSON), string(answersJSON), id,
	)
	return err
}
