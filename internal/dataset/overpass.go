package dataset

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/resilience"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// DefaultOverpassEndpoint is the public Overpass API interpreter.
const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// Querier runs an Overpass QL query. *overpass.Client satisfies it.
type Querier interface {
	Query(query string) (overpass.Result, error)
}

// NewOverpassClient returns an Overpass client with a request timeout.
func NewOverpassClient(endpoint string, timeout time.Duration) *overpass.Client {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	c := overpass.NewWithSettings(endpoint, 2, &http.Client{Timeout: timeout})
	return &c
}

// StationQuery returns the Overpass QL query for railway stations inside
// the bounding box of a WGS84 region.
func StationQuery(b *geom.Bounds) string {
	return fmt.Sprintf(`[out:json];node["railway"="station"](%f,%f,%f,%f);out body;`,
		b.Min(1), b.Min(0), b.Max(1), b.Max(0))
}

// FetchStations queries railway stations within region and returns them as
// anchors ordered by OSM node ID. Stations inside the bounding box but
// outside the region polygon are dropped.
func FetchStations(ctx context.Context, q Querier, region feature.Region) ([]AnchorDoc, error) {
	if region.Geometry == nil {
		return nil, feature.ErrNoRegion
	}
	if srid := region.Geometry.SRID(); srid != feature.SRIDWGS84 {
		return nil, eris.Wrapf(feature.ErrCrsMismatch, "dataset: overpass needs SRID %d, region has %d", feature.SRIDWGS84, srid)
	}
	query := StationQuery(region.Geometry.Bounds())

	res, err := resilience.Do(ctx, resilience.DefaultPolicy("overpass stations"), func(ctx context.Context) (overpass.Result, error) {
		return queryOnce(ctx, q, query)
	})
	if err != nil {
		return nil, eris.Wrap(err, "dataset: overpass query")
	}

	ids := make([]int64, 0, len(res.Nodes))
	for id := range res.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var planar spatial.Planar
	anchors := make([]AnchorDoc, 0, len(ids))
	for _, id := range ids {
		n := res.Nodes[id]
		if n == nil || !planar.Contains(region.Geometry, geom.Coord{n.Lon, n.Lat}) {
			continue
		}
		name := n.Tags["name"]
		if name == "" {
			name = "station " + strconv.FormatInt(id, 10)
		}
		anchors = append(anchors, AnchorDoc{Name: name, X: n.Lon, Y: n.Lat})
	}

	zap.L().Info("fetched transit stations",
		zap.String("component", "dataset.overpass"),
		zap.Int("nodes", len(res.Nodes)),
		zap.Int("anchors", len(anchors)),
	)
	return anchors, nil
}

// queryOnce runs q in a goroutine so a done ctx abandons a slow request.
func queryOnce(ctx context.Context, q Querier, query string) (overpass.Result, error) {
	type reply struct {
		res overpass.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := q.Query(query)
		ch <- reply{res, err}
	}()

	select {
	case <-ctx.Done():
		return overpass.Result{}, ctx.Err()
	case r := <-ch:
		return r.res, r.err
	}
}
