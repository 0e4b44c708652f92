package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// exportCSV flattens a board into one row per card. Lists without cards
// still produce a row so the export reflects the board's structure.
func exportCSV(board BoardData) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"list", "position", "card", "description", "complete"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, list := range board.Lists {
		if len(list.Cards) == 0 {
			if err := w.Write([]string{list.Title, "", "", "", ""}); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
			continue
		}
		for _, card := range list.Cards {
			row := []string{
				list.Title,
				strconv.Itoa(card.Position),
				card.Title,
				card.Description,
				strconv.FormatBool(card.IsComplete),
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(board.Name) + ".csv",
		MimeType: "text/csv",
	}, nil
}
