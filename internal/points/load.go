// Package points loads labeled training points from the field-data formats
// survey teams actually deliver: CSV, GeoJSON, Excel workbooks and
// shapefiles.
package points

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/terralab/landcover-cli/internal/model"
)

// Load reads training points from path, dispatching on the file extension.
func Load(path string) ([]model.TrainingPoint, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	case ".xlsx":
		return LoadXLSX(path)
	case ".shp":
		return LoadShapefile(path)
	default:
		return nil, eris.Errorf("points: unsupported training data format %q", filepath.Ext(path))
	}
}

// header aliases accepted across tabular formats.
var (
	latAliases   = []string{"lat", "latitude", "y"}
	lonAliases   = []string{"lon", "lng", "longitude", "x"}
	labelAliases = []string{"label", "class", "class_id", "classid"}
	nameAliases  = []string{"class_name", "classname", "name"}
)

func findColumn(headers []string, aliases []string) int {
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, a := range aliases {
			if h == a {
				return i
			}
		}
	}
	return -1
}

// rowPoint converts one tabular row into a point using the resolved column
// indices. name may be -1.
func rowPoint(cells []string, lat, lon, label, name int, line int) (model.TrainingPoint, error) {
	var p model.TrainingPoint
	get := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	var err error
	if p.Lat, err = strconv.ParseFloat(get(lat), 64); err != nil {
		return p, eris.Errorf("points: row %d: bad latitude %q", line, get(lat))
	}
	if p.Lon, err = strconv.ParseFloat(get(lon), 64); err != nil {
		return p, eris.Errorf("points: row %d: bad longitude %q", line, get(lon))
	}
	labelStr := get(label)
	// Excel cells often render integers as floats.
	if f, ferr := strconv.ParseFloat(labelStr, 64); ferr == nil {
		p.Label = int(f)
	} else {
		return p, eris.Errorf("points: row %d: bad label %q", line, labelStr)
	}
	if name >= 0 {
		p.ClassName = get(name)
	}
	return p, nil
}

func fromTable(headers []string, rows [][]string) ([]model.TrainingPoint, error) {
	lat := findColumn(headers, latAliases)
	lon := findColumn(headers, lonAliases)
	label := findColumn(headers, labelAliases)
	if lat < 0 || lon < 0 || label < 0 {
		return nil, eris.Errorf("points: header %v is missing a latitude, longitude or label column", headers)
	}
	name := findColumn(headers, nameAliases)

	pts := make([]model.TrainingPoint, 0, len(rows))
	for i, cells := range rows {
		if len(cells) == 0 {
			continue
		}
		empty := true
		for _, c := range cells {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		p, err := rowPoint(cells, lat, lon, label, name, i+2)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, eris.New("points: no training points found")
	}
	return pts, nil
}

// LoadCSV reads points from a CSV file with a header row.
func LoadCSV(path string) ([]model.TrainingPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "points: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "points: read header of %s", path)
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "points: read %s", path)
		}
		rows = append(rows, rec)
	}
	return fromTable(headers, rows)
}

// LoadGeoJSON reads points from a GeoJSON FeatureCollection of Point
// features carrying label and class_name properties.
func LoadGeoJSON(path string) ([]model.TrainingPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "points: open %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "points: decode %s", path)
	}

	pts := make([]model.TrainingPoint, 0, len(fc.Features))
	for i, feat := range fc.Features {
		pt, ok := feat.Geometry.(*geom.Point)
		if !ok {
			return nil, eris.Errorf("points: feature %d is not a Point geometry", i)
		}
		coords := pt.Coords()
		p := model.TrainingPoint{Lon: coords.X(), Lat: coords.Y()}

		label, ok := numericProperty(feat.Properties, labelAliases)
		if !ok {
			return nil, eris.Errorf("points: feature %d has no label property", i)
		}
		p.Label = int(label)
		if name, ok := stringProperty(feat.Properties, nameAliases); ok {
			p.ClassName = name
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, eris.New("points: no training points found")
	}
	return pts, nil
}

func numericProperty(props map[string]any, aliases []string) (float64, bool) {
	for _, a := range aliases {
		if v, ok := props[a]; ok {
			switch n := v.(type) {
			case float64:
				return n, true
			case string:
				if f, err := strconv.ParseFloat(n, 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func stringProperty(props map[string]any, aliases []string) (string, bool) {
	for _, a := range aliases {
		if v, ok := props[a]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// LoadXLSX reads points from the first sheet of an Excel workbook, header
// row first.
func LoadXLSX(path string) ([]model.TrainingPoint, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "points: open %s", path)
	}
	if len(file.Sheets) == 0 {
		return nil, eris.Errorf("points: %s has no sheets", path)
	}
	sheet := file.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("points: no training points found")
	}

	cellStrings := func(row *xlsx.Row) []string {
		out := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			out[i] = c.String()
		}
		return out
	}

	headers := cellStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		rows = append(rows, cellStrings(row))
	}
	return fromTable(headers, rows)
}

// LoadShapefile reads point shapes with label and class_name attributes.
func LoadShapefile(path string) ([]model.TrainingPoint, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "points: open %s", path)
	}
	defer r.Close()

	fields := r.Fields()
	labelField, nameField := -1, -1
	for i, f := range fields {
		name := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		if labelField < 0 && findColumn([]string{name}, labelAliases) == 0 {
			labelField = i
		}
		if nameField < 0 && findColumn([]string{name}, nameAliases) == 0 {
			nameField = i
		}
	}
	if labelField < 0 {
		return nil, eris.Errorf("points: %s has no label attribute", path)
	}

	var pts []model.TrainingPoint
	for r.Next() {
		n, shape := r.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			return nil, eris.Errorf("points: shape %d is not a point", n)
		}
		p := model.TrainingPoint{Lon: pt.X, Lat: pt.Y}

		labelStr := strings.TrimSpace(r.ReadAttribute(n, labelField))
		f, err := strconv.ParseFloat(labelStr, 64)
		if err != nil {
			return nil, eris.Errorf("points: shape %d: bad label %q", n, labelStr)
		}
		p.Label = int(f)
		if nameField >= 0 {
			p.ClassName = strings.TrimSpace(r.ReadAttribute(n, nameField))
		}
		pts = append(pts, p)
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "points: read %s", path)
	}
	if len(pts) == 0 {
		return nil, eris.New("points: no training points found")
	}
	return pts, nil
}
