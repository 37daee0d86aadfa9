// Package overpass queries an Overpass API endpoint for OpenStreetMap
// features and drivable road data inside a polygon.
package overpass

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/fetcher"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// DriveFilter keeps the road classes used for accessibility routing. The
// pattern is unanchored so *_link ramps match as well.
const DriveFilter = "motorway|trunk|primary|secondary|tertiary|residential"

// Filter is one key with one or more accepted values. An empty Values slice
// matches any value of Key.
type Filter struct {
	Key    string
	Values []string
}

// Element is one OSM element from an Overpass JSON response.
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Nodes    []int64           `json:"nodes,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry []LatLon          `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// LatLon is a vertex of an element rendered with `out geom`.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member rendered with `out geom`.
type Member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []LatLon `json:"geometry,omitempty"`
}

type response struct {
	Remark   string    `json:"remark,omitempty"`
	Elements []Element `json:"elements"`
}

// Roads holds the raw material for a street network.
type Roads struct {
	Nodes map[int64]Element
	Ways  []Element
}

// Options configures a Client.
type Options struct {
	Endpoint string
	// Timeout is the server-side query timeout.
	Timeout time.Duration
	Fetcher *fetcher.HTTPFetcher
}

// Client talks to one Overpass endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *fetcher.HTTPFetcher
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	return &Client{endpoint: opts.Endpoint, timeout: opts.Timeout, http: opts.Fetcher}
}

// Features returns every node, way and relation inside area matching any of
// filters, with geometry. Zero matches is an empty-result error.
func (c *Client) Features(ctx context.Context, area orb.Polygon, filters []Filter) ([]Element, error) {
	if len(filters) == 0 {
		return nil, apperr.InvalidInput("overpass.features", "at least one tag filter is required")
	}
	poly, err := polyFilter(area)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	c.header(&b)
	b.WriteString("(\n")
	for _, f := range filters {
		b.WriteString("  nwr")
		b.WriteString(tagSelector(f))
		b.WriteString(poly)
		b.WriteString(";\n")
	}
	b.WriteString(");\nout geom;")

	elements, err := c.run(ctx, "overpass.features", b.String())
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, apperr.EmptyResult("overpass.features", "no features matched the tag filters")
	}
	return elements, nil
}

// Roads returns the highway ways whose class matches pattern inside area,
// plus every node they reference.
func (c *Client) Roads(ctx context.Context, area orb.Polygon, pattern string) (*Roads, error) {
	if pattern == "" {
		pattern = DriveFilter
	}
	poly, err := polyFilter(area)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	c.header(&b)
	b.WriteString("(\n  way[\"highway\"][\"area\"!~\"yes\"][\"highway\"~\"")
	b.WriteString(escape(pattern))
	b.WriteString("\"]")
	b.WriteString(poly)
	b.WriteString(";\n  >;\n);\nout body;")

	elements, err := c.run(ctx, "overpass.roads", b.String())
	if err != nil {
		return nil, err
	}

	roads := &Roads{Nodes: make(map[int64]Element)}
	for _, e := range elements {
		switch e.Type {
		case "node":
			roads.Nodes[e.ID] = e
		case "way":
			roads.Ways = append(roads.Ways, e)
		}
	}
	if len(roads.Ways) == 0 {
		return nil, apperr.EmptyResult("overpass.roads", "no qualifying roads in region")
	}
	return roads, nil
}

func (c *Client) header(b *strings.Builder) {
	b.WriteString("[out:json][timeout:")
	b.WriteString(strconv.Itoa(int(c.timeout.Seconds())))
	b.WriteString("];\n")
}

func (c *Client) run(ctx context.Context, op, query string) ([]Element, error) {
	log := zap.L().With(zap.String("component", "overpass"), zap.String("op", op))
	start := time.Now()

	var resp response
	if err := c.http.PostFormJSON(ctx, c.endpoint, url.Values{"data": {query}}, &resp); err != nil {
		return nil, err
	}
	if resp.Remark != "" && strings.Contains(strings.ToLower(resp.Remark), "timed out") {
		return nil, apperr.Wrap(apperr.KindExternalRetrieval, op, timeoutRemark(resp.Remark))
	}
	log.Debug("overpass query complete",
		zap.Int("elements", len(resp.Elements)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.Elements, nil
}

// polyFilter renders the area's outer ring as an Overpass poly filter.
func polyFilter(area orb.Polygon) (string, error) {
	if len(area) == 0 || len(area[0]) < 4 {
		return "", apperr.InvalidInput("overpass.poly", "region polygon needs a closed outer ring")
	}
	var b strings.Builder
	b.WriteString("(poly:\"")
	for i, p := range area[0] {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(p[1], 'f', 7, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(p[0], 'f', 7, 64))
	}
	b.WriteString("\")")
	return b.String(), nil
}

func tagSelector(f Filter) string {
	key := escape(f.Key)
	switch len(f.Values) {
	case 0:
		return "[\"" + key + "\"]"
	case 1:
		return "[\"" + key + "\"=\"" + escape(f.Values[0]) + "\"]"
	default:
		vals := make([]string, len(f.Values))
		for i, v := range f.Values {
			vals[i] = escape(v)
		}
		sort.Strings(vals)
		return "[\"" + key + "\"~\"^(" + strings.Join(vals, "|") + ")$\"]"
	}
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

type timeoutRemark string

func (r timeoutRemark) Error() string { return "overpass: " + string(r) }

// Timeout lets resilience.IsTransient treat server-side timeouts as retryable.
func (r timeoutRemark) Timeout() bool { return true }

func (r timeoutRemark) Temporary() bool { return true }
