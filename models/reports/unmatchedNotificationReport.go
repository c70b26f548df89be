package reports

import (
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/xuri/excelize/v2"
)

const UnmatchedSheet = "Unmatched"

var unmatchedHeadings = []string{
	"Received At", "Notification ID", "Source", "Transaction ID", "Reference",
	"Amount", "Phone", "Outcome", "Landlord ID", "Result",
}

// UnmatchedNotificationRow is one line of the reconciliation export.
type UnmatchedNotificationRow struct {
	ReceivedAt     time.Time
	NotificationID string
	Source         string
	TransactionID  string
	Reference      string
	Amount         float64
	Phone          string
	Outcome        string
	LandlordID     string
	ResultDesc     string
}

func (r UnmatchedNotificationRow) GetCellValues() []interface{} {
	return []interface{}{
		r.ReceivedAt.UTC().Format(time.RFC3339), r.NotificationID, r.Source, r.TransactionID, r.Reference,
		r.Amount, r.Phone, r.Outcome, r.LandlordID, r.ResultDesc,
	}
}

// NewUnmatchedNotificationRows flattens notifications for export. Phone
// numbers are masked.
func NewUnmatchedNotificationRows(notifications []models.InboundNotification) []UnmatchedNotificationRow {
	rows := make([]UnmatchedNotificationRow, 0, len(notifications))
	for _, n := range notifications {
		amount, _ := n.Amount.Float64()
		rows = append(rows, UnmatchedNotificationRow{
			ReceivedAt:     n.CreatedAt,
			NotificationID: n.ID,
			Source:         n.Source,
			TransactionID:  n.TransactionID,
			Reference:      n.Reference,
			Amount:         amount,
			Phone:          utils.MaskPhone(n.PhoneNumber),
			Outcome:        string(n.MatchOutcome),
			LandlordID:     utils.DereferencePtr(n.LandlordID),
			ResultDesc:     n.ResultDesc,
		})
	}
	return rows
}

// BuildUnmatchedWorkbook renders the rows as an xlsx workbook.
func BuildUnmatchedWorkbook(rows []UnmatchedNotificationRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", UnmatchedSheet); err != nil {
		return nil, err
	}
	for i, h := range unmatchedHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(UnmatchedSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r, row := range rows {
		for c, v := range row.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(UnmatchedSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	if err := f.SetPanes(UnmatchedSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
