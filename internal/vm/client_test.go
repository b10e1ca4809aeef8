package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/wfde5/internal/table"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testDaily() *table.Daily {
	return &table.Daily{
		Days: []time.Time{
			time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		Cells: []table.Cell{
			{Column: 0, LatIndex: 0, LonIndex: 0, Lat: 1.25, Lon: -62.75},
			{Column: 1, LatIndex: 0, LonIndex: 1, Lat: 1.25, Lon: -62.25},
		},
		Values: [][]float64{{12.5, 0.001}, {3, 4}},
	}
}

func TestRecords(t *testing.T) {
	recs := Records(testDaily())
	require.Len(t, recs, 4)
	assert.Equal(t, Record{Timestamp: 946684800000, Cell: 1, Latitude: 1.25, Longitude: -62.25, Precipitation: 0.001}, recs[1])
	assert.Equal(t, int64(946771200000), recs[2].Timestamp)

	d := testDaily()
	d.Values[1][0] = math.NaN()
	assert.Len(t, Records(d), 3)
}

func TestRecToText(t *testing.T) {
	r := Record{Timestamp: 946684800000, Cell: 7, Latitude: 1.25, Longitude: -62.75, Precipitation: 12.5}

	var sb strings.Builder
	recToInfluxDB(&sb, &r, "wfde5")
	assert.Equal(t, "wfde5,cell=7,la=1.25,lo=-62.75 precip=12.5 946684800000", sb.String())

	sb.Reset()
	recToCSV(&sb, &r, "wfde5")
	assert.Equal(t, "946684800000,7,1.25,-62.75,12.5", sb.String())
}

func TestNewClientRejects(t *testing.T) {
	_, err := NewClient(testLogger, "http://localhost:8428/write", 1, "bad-prefix")
	assert.ErrorContains(t, err, `metric prefix "bad-prefix"`)
	_, err = NewClient(testLogger, "http://localhost:8428/api/v1/import/prometheus", 1, "wfde5")
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "vm.NewClient", "error carries a stack trace")
	_, err = NewClient(testLogger, "::not a url", 1, "wfde5")
	assert.ErrorContains(t, err, "parse insert url")
}

func TestInsert(t *testing.T) {
	var (
		body  string
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body, query = string(b), r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger, srv.URL+"/write", 2, "wfde5")
	require.NoError(t, err)
	require.NoError(t, c.Insert(context.Background(), Records(testDaily())))

	assert.Equal(t, 4, strings.Count(body, "\n"))
	assert.True(t, strings.HasPrefix(body, "wfde5,cell=0,la=1.25,lo=-62.75 precip=12.5 946684800000\n"))
	assert.Equal(t, "precision=ms", query)
}

func TestInsertFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger, srv.URL+"/api/v1/import/csv", 1, "wfde5")
	require.NoError(t, err)
	err = c.Insert(context.Background(), Records(testDaily()))
	assert.ErrorContains(t, err, "unexpected status 400")
}
