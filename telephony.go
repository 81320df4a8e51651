package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"
	"ussdpilot/pkg/ussd"
)

var ussdCodePattern = regexp.MustCompile(`^[0-9*#+]+$`)

// slotExtras are the intent extras OEM dialers read to pick a SIM.
var slotExtras = []string{
	"com.android.phone.extra.slot",
	"com.android.phone.force.slot",
	"slot",
	"simSlot",
	"simslot",
	"subscription",
}

// telephony dials codes and reads SIM subscriptions on a device.
type telephony struct {
	shell shellRunner
}

// encodeUssdCode escapes a code for a tel: URI. An unescaped # ends the URI.
func encodeUssdCode(code string) string {
	return strings.ReplaceAll(code, "#", "%23")
}

// dialCommand builds the CALL intent. A negative line uses the default SIM.
func dialCommand(code string, line int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "am start -a android.intent.action.CALL -d 'tel:%s'", encodeUssdCode(code))
	if line >= 0 {
		for _, extra := range slotExtras {
			fmt.Fprintf(&b, " --ei %s %d", extra, line)
		}
	}
	return b.String()
}

// Dial starts code on the SIM in slot line. It implements ussd.Dialer.
func (t *telephony) Dial(ctx context.Context, code string, line int) error {
	code = strings.TrimSpace(code)
	if !ussdCodePattern.MatchString(code) {
		return ussd.InvalidArgument("invalid ussd code %q", code)
	}
	out, err := t.shell.Shell(ctx, dialCommand(code, line))
	if err != nil {
		return ussd.TransientFault("dial", err)
	}
	if strings.Contains(out, "Error:") || strings.Contains(out, "SecurityException") {
		return ussd.TerminalFault("dial", errors.New(strings.TrimSpace(out)))
	}
	logging.Info("telephony").Str("code", code).Int("line", line).Msg("USSD code dialed")
	return nil
}

// ListLines returns the SIM subscriptions with a card inserted.
func (t *telephony) ListLines(ctx context.Context) ([]types.Line, error) {
	out, err := t.shell.Shell(ctx, "content query --uri content://telephony/siminfo")
	if err != nil {
		return nil, fmt.Errorf("query siminfo: %w", err)
	}
	return parseSimInfo(out), nil
}

// parseSimInfo reads `content query` rows. Values may contain ", ", so a
// fragment without '=' belongs to the previous value.
func parseSimInfo(output string) []types.Line {
	var lines []types.Line
	for _, row := range strings.Split(output, "\n") {
		row = strings.TrimSpace(row)
		if !strings.HasPrefix(row, "Row:") {
			continue
		}
		row = strings.TrimSpace(strings.TrimPrefix(row, "Row:"))
		if i := strings.IndexByte(row, ' '); i != -1 {
			row = row[i+1:]
		}

		fields := make(map[string]string)
		var key string
		for _, frag := range strings.Split(row, ", ") {
			k, v, ok := strings.Cut(frag, "=")
			if !ok || strings.ContainsAny(k, " ") {
				if key != "" {
					fields[key] += ", " + frag
				}
				continue
			}
			key = k
			fields[key] = v
		}

		slot, err := strconv.Atoi(fields["sim_id"])
		if err != nil || slot < 0 {
			continue
		}
		subID, _ := strconv.Atoi(fields["_id"])
		lines = append(lines, types.Line{
			ID:          slot,
			SubID:       subID,
			DisplayName: nullable(fields["display_name"]),
			Carrier:     nullable(fields["carrier_name"]),
			Number:      nullable(fields["number"]),
			ICCID:       nullable(fields["icc_id"]),
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

func nullable(v string) string {
	if v == "NULL" {
		return ""
	}
	return v
}
