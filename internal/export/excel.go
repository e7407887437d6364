// Package export writes bookings and memberships to spreadsheets.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"strikedesk/internal/config"
	"strikedesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var errNoSheet = errors.New("no active sheet")

var (
	bookingColumns = []string{
		"ID", "Seq", "Booked by", "Customer type", "Booking type", "Package", "Center",
		"For date", "For time", "Status", "Activated at", "Expires at", "Booked on",
	}
	membershipColumns = []string{
		"Phone", "Package", "Total overs", "Overs left", "Overs used", "Validity", "Status", "Center", "Price", "Created at",
	}
)

// workbook is a thin row-at-a-time writer over an excelize file.
type workbook struct {
	file  *excelize.File
	sheet string
	row   int
}

func newWorkbook() *workbook {
	return &workbook{file: excelize.NewFile()}
}

func (w *workbook) addSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *workbook) header(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.write(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.sheet, start, end, style)
	}
	return nil
}

func (w *workbook) write(row []any) error {
	if w.sheet == "" {
		return errNoSheet
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

func (w *workbook) save(out io.Writer) error {
	defer w.file.Close()
	return w.file.Write(out)
}

// WriteBookingsXLSX writes one sheet with a row per booking.
func WriteBookingsXLSX(out io.Writer, bookings []models.Booking, cat *config.Catalog) error {
	wb := newWorkbook()
	if err := wb.addSheet("Bookings"); err != nil {
		return err
	}
	if err := wb.header(bookingColumns); err != nil {
		return err
	}
	for i := range bookings {
		if err := wb.write(bookingRowValues(&bookings[i], cat)); err != nil {
			return fmt.Errorf("write booking %s: %w", bookings[i].ID, err)
		}
	}
	return wb.save(out)
}

// WriteMembershipsXLSX writes one sheet with a row per membership.
func WriteMembershipsXLSX(out io.Writer, memberships []models.Membership, cat *config.Catalog) error {
	wb := newWorkbook()
	if err := wb.addSheet("Memberships"); err != nil {
		return err
	}
	if err := wb.header(membershipColumns); err != nil {
		return err
	}
	for i := range memberships {
		if err := wb.write(membershipRowValues(&memberships[i], cat)); err != nil {
			return fmt.Errorf("write membership %s: %w", memberships[i].Phone, err)
		}
	}
	return wb.save(out)
}

func bookingRowValues(b *models.Booking, cat *config.Catalog) []any {
	slot := b.Slot()
	return []any{
		b.ID,
		b.Seq,
		b.BookedBy,
		string(b.CustomerType),
		string(b.BookingType),
		packageLabel(b.PackageID),
		centerName(int(b.Center), cat),
		slot.Date,
		slot.Time,
		string(b.Status),
		formatStamp(b.ActivatedAt),
		formatStamp(b.ExpiryTime),
		onStamp(b),
	}
}

func membershipRowValues(m *models.Membership, cat *config.Catalog) []any {
	created := ""
	if !m.CreatedAt.IsZero() {
		created = m.CreatedAt.Format("2006-01-02 15:04:05")
	}
	return []any{
		m.Phone,
		packageLabel(m.PackageID),
		m.TotalOvers,
		m.OversLeft,
		m.OversUsed(),
		m.Validity,
		models.NormalizeMembershipStatus(m.Status),
		centerName(int(m.Center), cat),
		m.Price,
		created,
	}
}

func onStamp(b *models.Booking) string {
	if b.OnDate == "" {
		return ""
	}
	d := b.OnDate
	if len(d) > len(models.DateLayout) {
		d = d[:len(models.DateLayout)]
	}
	if b.OnTime == "" {
		return d
	}
	return d + " " + b.OnTime
}

func packageLabel(id int) string {
	if id == 0 {
		return ""
	}
	return "#" + strconv.Itoa(id)
}

func centerName(id int, cat *config.Catalog) string {
	if cat != nil {
		if c := cat.CenterByID(id); c != nil {
			return c.Name
		}
	}
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}

func formatStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
