package export

import (
	"context"
	"fmt"
	"os"

	"strikedesk/internal/config"
	"strikedesk/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// valuesUpdater is the slice of the Sheets API the sync uses.
type valuesUpdater interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

type sheetsValues struct {
	svc *sheets.Service
}

func (s *sheetsValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *sheetsValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// SheetsSync mirrors the booking list into a Google Sheet.
type SheetsSync struct {
	values        valuesUpdater
	spreadsheetID string
	rng           string
	catalog       func() *config.Catalog
	logger        *zerolog.Logger
}

// NewSheetsSync authenticates with a service account key file.
func NewSheetsSync(ctx context.Context, credentialsFile, spreadsheetID, rng string, catalog func() *config.Catalog, logger *zerolog.Logger) (*SheetsSync, error) {
	key, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	jwt, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newSheetsSync(&sheetsValues{svc: svc}, spreadsheetID, rng, catalog, logger), nil
}

func newSheetsSync(values valuesUpdater, spreadsheetID, rng string, catalog func() *config.Catalog, logger *zerolog.Logger) *SheetsSync {
	l := logger.With().Str("component", "sheets").Logger()
	return &SheetsSync{values: values, spreadsheetID: spreadsheetID, rng: rng, catalog: catalog, logger: &l}
}

// PushBookings overwrites the configured range with the non-cancelled bookings.
// Returns the number of booking rows written.
func (s *SheetsSync) PushBookings(ctx context.Context, bookings []models.Booking) (int, error) {
	active := filterActiveBookings(bookings)
	cat := s.catalog()

	rows := make([][]any, 0, len(active)+1)
	header := make([]any, len(bookingColumns))
	for i, c := range bookingColumns {
		header[i] = c
	}
	rows = append(rows, header)
	for i := range active {
		rows = append(rows, bookingRowValues(&active[i], cat))
	}

	if err := s.values.Clear(ctx, s.spreadsheetID, s.rng); err != nil {
		return 0, fmt.Errorf("clear sheet range %s: %w", s.rng, err)
	}
	if err := s.values.Update(ctx, s.spreadsheetID, s.rng, rows); err != nil {
		return 0, fmt.Errorf("update sheet range %s: %w", s.rng, err)
	}

	s.logger.Info().Int("rows", len(active)).Str("range", s.rng).Msg("bookings pushed to sheet")
	return len(active), nil
}

func filterActiveBookings(bookings []models.Booking) []models.Booking {
	out := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != models.StatusCancelled {
			out = append(out, b)
		}
	}
	return out
}
