package present

import (
	"encoding/json"
	"html/template"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// MapSink renders the map view.
type MapSink interface {
	RenderMap(w io.Writer, m *Map) error
}

// FeatureCollection returns the parcels of m as GeoJSON features carrying
// their score, tier, channel, fill colour and tooltip.
func FeatureCollection(m *Map) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(m.Features))}
	for _, f := range m.Features {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(f.ID),
			Geometry: f.Geometry,
			Properties: map[string]interface{}{
				"parcel_id": f.ID,
				"score":     f.Score,
				"tier":      f.Tier.String(),
				"channel":   string(f.Channel),
				"fill":      StyleFor(f.Tier).Fill,
				"tooltip":   f.Tooltip,
			},
		})
	}
	return fc
}

// GeoJSON encodes the parcels of m as a GeoJSON FeatureCollection.
func GeoJSON(m *Map) ([]byte, error) {
	b, err := json.Marshal(FeatureCollection(m))
	if err != nil {
		return nil, eris.Wrap(err, "present: encode geojson")
	}
	return b, nil
}

func overlays(m *Map) ([]byte, []byte, error) {
	region, err := json.Marshal(&geojson.Feature{
		Geometry:   m.Region.Geometry,
		Properties: map[string]interface{}{"tooltip": RegionTooltip(m.Region)},
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "present: encode region")
	}

	anchors := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(m.Anchors))}
	for _, a := range m.Anchors {
		anchors.Features = append(anchors.Features, &geojson.Feature{
			Geometry:   a.Point,
			Properties: map[string]interface{}{"name": a.Name},
		})
	}
	ab, err := json.Marshal(anchors)
	if err != nil {
		return nil, nil, eris.Wrap(err, "present: encode anchors")
	}
	return region, ab, nil
}

var leafletMap = template.Must(template.New("map").Parse(`<div id="{{.ID}}" style="height: {{.Height}}px;"></div>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<script>
(function () {
  var geographic = {{.Geographic}};
  var map = L.map({{.ID}}, geographic ? {} : {crs: L.CRS.Simple});
  if (geographic) {
    L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
      attribution: "&copy; OpenStreetMap contributors"
    }).addTo(map);
  }
  var region = L.geoJSON({{.Region}}, {
    style: {fillColor: "none", color: "blue", weight: 2, fillOpacity: 0}
  }).bindTooltip(function (l) { return l.feature.properties.tooltip; }).addTo(map);
  L.geoJSON({{.Parcels}}, {
    style: function (f) {
      return {fillColor: f.properties.fill, color: "black", weight: 1, fillOpacity: 0.6};
    },
    onEachFeature: function (f, l) { l.bindTooltip(f.properties.tooltip); }
  }).addTo(map);
  L.geoJSON({{.Anchors}}, {
    onEachFeature: function (f, l) { l.bindTooltip(f.properties.name); }
  }).addTo(map);
  if (geographic) {
    map.setView([{{.Lat}}, {{.Lon}}], {{.Zoom}});
  } else {
    map.fitBounds(region.getBounds());
  }
})();
</script>
`))

// LeafletSink renders the map as a Leaflet fragment with the GeoJSON data
// inlined. Projected views are drawn without base tiles.
type LeafletSink struct {
	ElementID string
	Height    int
}

// RenderMap implements MapSink.
func (s LeafletSink) RenderMap(w io.Writer, m *Map) error {
	parcels, err := GeoJSON(m)
	if err != nil {
		return err
	}
	region, anchors, err := overlays(m)
	if err != nil {
		return err
	}

	id := s.ElementID
	if id == "" {
		id = "suitability-map"
	}
	height := s.Height
	if height <= 0 {
		height = 600
	}

	data := struct {
		ID                       string
		Height                   int
		Geographic               bool
		Lat, Lon                 float64
		Zoom                     int
		Region, Parcels, Anchors template.JS
	}{
		ID:         id,
		Height:     height,
		Geographic: m.Geographic(),
		Lat:        m.Center.Y(),
		Lon:        m.Center.X(),
		Zoom:       m.Zoom,
		Region:     template.JS(region),
		Parcels:    template.JS(parcels),
		Anchors:    template.JS(anchors),
	}
	if err := leafletMap.Execute(w, data); err != nil {
		return eris.Wrap(err, "present: render leaflet map")
	}
	return nil
}
