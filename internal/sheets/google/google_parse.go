package google

import (
	"fmt"
	"strconv"
	"strings"

	"ricorrenti/internal/core"
	ports "ricorrenti/internal/sheets"
)

// parseRows converts a values matrix (as returned by the Sheets API) into
// rows. The first row must be the header; columns are located by name so
// reordered sheets still parse.
func parseRows(values [][]interface{}) ([]ports.Row, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	cols := make(map[string]int, len(ports.Header))
	var missing []string
	for _, h := range ports.Header {
		idx := indexOf(headers, h)
		if idx == -1 {
			missing = append(missing, h)
		}
		cols[h] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected sheet header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	var rows []ports.Row
	for i := 1; i < len(values); i++ {
		cells := toStrings(values[i])
		txID, err := strconv.ParseInt(safeGet(cells, cols["Transaction"]), 10, 64)
		if err != nil {
			continue
		}
		amount, err := parseSignedAmount(safeGet(cells, cols["Amount"]))
		if err != nil {
			continue
		}
		ruleID, _ := strconv.ParseInt(safeGet(cells, cols["Rule"]), 10, 64)
		rows = append(rows, ports.Row{
			Date:          safeGet(cells, cols["Date"]),
			Name:          safeGet(cells, cols["Name"]),
			Amount:        amount,
			Type:          core.TransactionType(safeGet(cells, cols["Type"])),
			Category:      safeGet(cells, cols["Category"]),
			Wallet:        safeGet(cells, cols["Wallet"]),
			RuleID:        ruleID,
			TransactionID: txID,
		})
	}
	return rows, nil
}

func parseSignedAmount(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	m, err := core.ParseMoney(strings.TrimPrefix(s, "-"))
	if err != nil {
		return core.Money{}, err
	}
	if negative {
		return m.Neg(), nil
	}
	return m, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
