package dashboard

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Profiles"

var exportHeadings = []string{"Email", "Name", "Phone", "Employment Status", "HR Systems", "Support Tickets", "YouTube Channel"}

func profileCells(p unified.UnifiedProfile) []interface{} {
	return []interface{}{
		p.Email,
		p.Name,
		p.Phone,
		p.EmploymentStatus,
		strings.Join(p.HRSystems, ", "),
		len(p.SupportTickets),
		p.ChannelName,
	}
}

// exportProfiles writes one row per profile, sorted by email.
func exportProfiles(bundles map[string]unified.ProfileBundle) ([]byte, error) {
	emails := make([]string, 0, len(bundles))
	for email := range bundles {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	col := 'A'
	for _, h := range exportHeadings {
		if err := f.SetCellValue(exportSheet, string(col)+"1", h); err != nil {
			return nil, err
		}
		col++
	}

	rowNo := 2
	for _, email := range emails {
		col := 'A'
		for _, value := range profileCells(bundles[email].UnifiedProfile) {
			if err := f.SetCellValue(exportSheet, string(col)+fmt.Sprint(rowNo), value); err != nil {
				return nil, err
			}
			col++
		}
		rowNo++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
