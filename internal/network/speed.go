package network

import (
	"strconv"
	"strings"
)

// mphToKPH converts miles per hour.
const mphToKPH = 1.609344

// DefaultSpeeds are the free-flow speeds (km/h) used for highway classes
// that have no posted limit anywhere in the network.
var DefaultSpeeds = map[string]float64{
	"motorway":       105,
	"motorway_link":  65,
	"trunk":          85,
	"trunk_link":     55,
	"primary":        65,
	"primary_link":   50,
	"secondary":      55,
	"secondary_link": 45,
	"tertiary":       45,
	"tertiary_link":  40,
	"residential":    40,
}

// fallbackSpeed applies when neither a posted limit nor a class default exists.
const fallbackSpeed = 40.0

// ParseMaxspeed converts an OSM maxspeed value to km/h. Semicolon-separated
// lists are averaged; "mph" values are converted. ok is false when nothing
// numeric can be read.
func ParseMaxspeed(raw string) (kph float64, ok bool) {
	var sum float64
	var n int
	for _, part := range strings.Split(raw, ";") {
		v, good := parseOneSpeed(part)
		if good {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func parseOneSpeed(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	factor := 1.0
	if strings.HasSuffix(s, "mph") {
		factor = mphToKPH
		s = strings.TrimSpace(strings.TrimSuffix(s, "mph"))
	} else {
		s = strings.TrimSpace(strings.TrimSuffix(s, "km/h"))
		s = strings.TrimSpace(strings.TrimSuffix(s, "kph"))
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * factor, true
}

// AddEdgeSpeeds sets SpeedKPH on every edge. Edges with a readable maxspeed
// use it; others take the mean posted speed of their highway class in this
// network, then the class default, then the network-wide mean. Multi-class
// edges are grouped by their first class.
func AddEdgeSpeeds(g *Graph, overrides map[string]float64) {
	known := make([]bool, len(g.Edges))
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var total float64
	var totalN int
	for i := range g.Edges {
		e := &g.Edges[i]
		v, ok := ParseMaxspeed(e.Tags["maxspeed"])
		if !ok {
			continue
		}
		e.SpeedKPH = v
		known[i] = true
		cls := primaryClass(*e)
		sums[cls] += v
		counts[cls]++
		total += v
		totalN++
	}

	for i := range g.Edges {
		if known[i] {
			continue
		}
		e := &g.Edges[i]
		cls := primaryClass(*e)
		switch {
		case counts[cls] > 0:
			e.SpeedKPH = sums[cls] / float64(counts[cls])
		case overrides[cls] > 0:
			e.SpeedKPH = overrides[cls]
		case DefaultSpeeds[cls] > 0:
			e.SpeedKPH = DefaultSpeeds[cls]
		case totalN > 0:
			e.SpeedKPH = total / float64(totalN)
		default:
			e.SpeedKPH = fallbackSpeed
		}
	}
}

// AddTravelTimes sets TravelTime = Length / speed in seconds.
func AddTravelTimes(g *Graph) {
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.SpeedKPH <= 0 {
			continue
		}
		e.TravelTime = e.Length / (e.SpeedKPH * 1000 / 3600)
	}
}

func primaryClass(e Edge) string {
	if len(e.Highway) == 0 {
		return ""
	}
	return e.Highway[0]
}
