package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/netsweep/network-survey-agent/internal/models"
	srvErrors "github.com/netsweep/network-survey-agent/pkg/errors"
)

// SurveyStore handles survey run records.
type SurveyStore struct {
	db *sql.DB
}

func NewSurveyStore(db *sql.DB) *SurveyStore {
	return &SurveyStore{db: db}
}

// Save inserts or updates one survey record.
func (s *SurveyStore) Save(ctx context.Context, survey models.Survey) error {
	var finished any
	if !survey.FinishedAt.IsZero() {
		finished = survey.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, queryUpsertSurvey,
		survey.ID,
		survey.State.Value(),
		strings.Join(survey.Targets, ","),
		survey.Total,
		survey.Completed,
		survey.StartedAt,
		finished,
	)
	return err
}

// Get retrieves one survey by id.
func (s *SurveyStore) Get(ctx context.Context, id string) (*models.Survey, error) {
	return s.scanRow(s.db.QueryRowContext(ctx, queryGetSurvey, id), id)
}

// Latest retrieves the most recently started survey.
func (s *SurveyStore) Latest(ctx context.Context) (*models.Survey, error) {
	return s.scanRow(s.db.QueryRowContext(ctx, queryLatestSurvey), "")
}

func (s *SurveyStore) scanRow(row *sql.Row, id string) (*models.Survey, error) {
	var survey models.Survey
	var state, targets string
	var finished sql.NullTime
	err := row.Scan(
		&survey.ID,
		&state,
		&targets,
		&survey.Total,
		&survey.Completed,
		&survey.StartedAt,
		&finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewSurveyNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	survey.State = models.SurveyState(state)
	if targets != "" {
		survey.Targets = strings.Split(targets, ",")
	}
	if finished.Valid {
		survey.FinishedAt = finished.Time
	}
	return &survey, nil
}
