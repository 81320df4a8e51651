package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ussdpilot/pkg/logging"
)

// UINode is one element of a uiautomator dump.
type UINode struct {
	XMLName       xml.Name `xml:"node" json:"-"`
	Text          string   `xml:"text,attr" json:"text"`
	ResourceID    string   `xml:"resource-id,attr" json:"resourceId"`
	Class         string   `xml:"class,attr" json:"class"`
	Package       string   `xml:"package,attr" json:"package"`
	ContentDesc   string   `xml:"content-desc,attr" json:"contentDesc"`
	Checkable     bool     `xml:"checkable,attr" json:"checkable"`
	Checked       bool     `xml:"checked,attr" json:"checked"`
	Clickable     bool     `xml:"clickable,attr" json:"clickable"`
	Enabled       bool     `xml:"enabled,attr" json:"enabled"`
	Focusable     bool     `xml:"focusable,attr" json:"focusable"`
	Focused       bool     `xml:"focused,attr" json:"focused"`
	Scrollable    bool     `xml:"scrollable,attr" json:"scrollable"`
	LongClickable bool     `xml:"long-clickable,attr" json:"longClickable"`
	Password      bool     `xml:"password,attr" json:"password"`
	Selected      bool     `xml:"selected,attr" json:"selected"`
	Bounds        string   `xml:"bounds,attr" json:"bounds"`
	Nodes         []UINode `xml:"node" json:"nodes"`
}

// UIHierarchy is the document element of a dump.
type UIHierarchy struct {
	XMLName xml.Name `xml:"hierarchy"`
	Nodes   []UINode `xml:"node"`
}

var boundsPattern = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// parseBounds reads "[x1,y1][x2,y2]".
func parseBounds(bounds string) (x1, y1, x2, y2 int, ok bool) {
	m := boundsPattern.FindStringSubmatch(bounds)
	if len(m) < 5 {
		return 0, 0, 0, 0, false
	}
	x1, _ = strconv.Atoi(m[1])
	y1, _ = strconv.Atoi(m[2])
	x2, _ = strconv.Atoi(m[3])
	y2, _ = strconv.Atoi(m[4])
	return x1, y1, x2, y2, true
}

// center returns the tap point of a node. A zero-area node has none.
func (n *UINode) center() (int, int, bool) {
	x1, y1, x2, y2, ok := parseBounds(n.Bounds)
	if !ok || x2 <= x1 || y2 <= y1 {
		return 0, 0, false
	}
	return (x1 + x2) / 2, (y1 + y2) / 2, true
}

// ParseHierarchy cleans adb noise around a dump and parses it. Several
// top-level windows are wrapped in a synthetic container.
func ParseHierarchy(raw string) (*UINode, error) {
	start := strings.Index(raw, "<?xml")
	if start == -1 {
		start = strings.Index(raw, "<hierarchy")
	}
	if start == -1 {
		return nil, fmt.Errorf("no UI hierarchy in dump output")
	}
	content := raw[start:]
	if end := strings.LastIndex(content, ">"); end != -1 && end < len(content)-1 {
		content = content[:end+1]
	}

	// uiautomator leaves bare ampersands in text attributes.
	content = strings.ReplaceAll(content, "&", "&amp;")
	content = strings.ReplaceAll(content, "&amp;amp;", "&amp;")
	content = strings.ReplaceAll(content, "&amp;lt;", "&lt;")
	content = strings.ReplaceAll(content, "&amp;gt;", "&gt;")
	content = strings.ReplaceAll(content, "&amp;quot;", "&quot;")
	content = strings.ReplaceAll(content, "&amp;apos;", "&apos;")
	content = strings.ReplaceAll(content, "&amp;#", "&#")

	var doc UIHierarchy
	if err := xml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse UI XML (length: %d): %w", len(content), err)
	}
	switch len(doc.Nodes) {
	case 0:
		return nil, nil
	case 1:
		return &doc.Nodes[0], nil
	default:
		return &UINode{
			Class:   "android.view.View",
			Package: doc.Nodes[0].Package,
			Bounds:  "[0,0][0,0]",
			Enabled: true,
			Nodes:   doc.Nodes,
		}, nil
	}
}

const dumpFile = "/data/local/tmp/ussdpilot_view.xml"

// hierarchyDumper serializes and throttles uiautomator dumps. Two dumps
// running at once kill each other on the device.
type hierarchyDumper struct {
	shell      shellRunner
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration

	mu sync.Mutex
}

func newHierarchyDumper(shell shellRunner, minInterval time.Duration) *hierarchyDumper {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &hierarchyDumper{
		shell:      shell,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
}

// Dump fetches and parses the current UI tree. A nil node with a nil error
// means the device reported an empty hierarchy.
func (d *hierarchyDumper) Dump(ctx context.Context) (*UINode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		out string
		err error
	)
	for i := 0; i < d.maxRetries; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i > 0 {
			_, _ = d.shell.Shell(ctx, "pkill uiautomator")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}
		out, err = d.shell.Shell(ctx, fmt.Sprintf("uiautomator dump %s && cat %s", dumpFile, dumpFile))
		if err == nil && strings.Contains(out, "<hierarchy") {
			return ParseHierarchy(out)
		}
		logging.Debug("hierarchy").Int("retry", i+1).Int("maxRetries", d.maxRetries).Err(err).Msg("UI dump retry")
	}
	if err == nil {
		err = fmt.Errorf("unexpected dump output: %.80q", out)
	}
	return nil, fmt.Errorf("failed to dump UI after %d attempts: %w", d.maxRetries, err)
}
