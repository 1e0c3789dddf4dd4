package network

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// ReadCountriesCSV reads countries from a CSV file with a header row. The
// ISO code column may be named Code, ISO or iso_code, and the name column
// Name, Country or name. Rows missing either value are skipped. A
// country's ID is its lowercased ISO code.
func ReadCountriesCSV(r io.Reader) ([]Country, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	var countries []Country
	for _, row := range rows {
		iso := header.get(row, "code", "iso", "iso_code")
		name := header.get(row, "name", "country")
		if iso == "" || name == "" {
			continue
		}
		iso = strings.ToUpper(iso)
		countries = append(countries, Country{ID: strings.ToLower(iso), ISOCode: iso, Name: name})
	}
	return countries, nil
}

// ReadRoutesCSV reads routes from a CSV file with the columns country_id,
// short_name, long_name, is_active, valid_from and valid_to. route_id is
// optional and defaults to RouteID. Dates are YYYY-MM-DD; an empty
// valid_from defaults to today and an empty valid_to is open-ended. Rows
// with unreadable values are left out and reported.
func ReadRoutesCSV(r io.Reader) ([]Route, *validation.Report, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, nil, err
	}
	for _, col := range []string{"country_id", "short_name"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("routes csv: missing column %s", col)
		}
	}

	var (
		routes []Route
		report validation.Report
		today  = calendar.Day(time.Now())
	)
	for i, row := range rows {
		rt := Route{
			CountryID: strings.ToLower(header.get(row, "country_id")),
			ShortName: strings.ToUpper(header.get(row, "short_name")),
			LongName:  header.get(row, "long_name"),
			Active:    parseBool(header.get(row, "is_active", "active"), true),
			ValidFrom: today,
		}
		rt.ID = header.get(row, "route_id", "id")
		if rt.ID == "" {
			rt.ID = RouteID(rt.CountryID, rt.ShortName)
		}
		ref := validation.Ref("route", rt.ID)

		if s := header.get(row, "valid_from"); s != "" {
			d, err := time.Parse(time.DateOnly, s)
			if err != nil {
				report.Add(validation.KindInvalidField, ref, "row %d: valid_from %q is not a date", i+2, s)
				continue
			}
			rt.ValidFrom = d
		}
		if s := header.get(row, "valid_to"); s != "" {
			d, err := time.Parse(time.DateOnly, s)
			if err != nil {
				report.Add(validation.KindInvalidField, ref, "row %d: valid_to %q is not a date", i+2, s)
				continue
			}
			rt.ValidTo = &d
		}
		routes = append(routes, rt)
	}
	return routes, &report, nil
}

// RouteID is the ID given to a route that is seeded without one.
func RouteID(countryID, shortName string) string {
	return countryID + "-" + shortName
}

// csvHeader maps lowercased column names to their index.
type csvHeader map[string]int

func (h csvHeader) get(row []string, names ...string) string {
	for _, name := range names {
		if i, ok := h[name]; ok && i < len(row) {
			if v := strings.TrimSpace(row[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

func readCSV(r io.Reader) (csvHeader, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	names, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv: missing header row")
		}
		return nil, nil, fmt.Errorf("csv header: %w", err)
	}
	header := make(csvHeader, len(names))
	for i, name := range names {
		name = strings.TrimPrefix(name, "\ufeff")
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv: %w", err)
	}
	return header, rows, nil
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def
	case "true", "1", "yes", "y":
		return true
	}
	return false
}
