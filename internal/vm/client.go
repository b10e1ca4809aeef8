package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client is a Victoria Metrics client capable of inserting daily cell
// precipitation via various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	recToText    recToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse insert url")
	}

	matches, err := regexp.Match(metricPrefixRE, []byte(metricPrefix))
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, errors.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	apiParams := apiParamsFuncs[url.Path]
	if apiParams == nil {
		return nil, errors.Errorf("inserting into %q is not supported", insertURL)
	}
	q := url.Query()
	for name, value := range apiParams(metricPrefix) {
		q.Add(name, value)
	}
	url.RawQuery = q.Encode()

	recToText := recToTextFuncs[url.Path]
	if recToText == nil {
		return nil, errors.Errorf("inserting into %q is not supported", insertURL)
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		recToText:    recToText,
	}, nil
}

// Insert inserts records into Victoria Metrics. Any failure is returned; the
// caller decides whether the run aborts.
func (c *Client) Insert(ctx context.Context, recs []Record) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, recsToText(recs, c.metricPrefix, c.recToText))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	res, err := c.httpCli.Do(req)
	if err != nil {
		return errors.Wrap(err, "post data")
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d from %s", res.StatusCode, c.insertURL)
	}
	return nil
}

type apiParamsFunc func(string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(metricPrefix string) map[string]string {
	return map[string]string{"precision": "ms"}
}

func csvAPIParams(metricPrefix string) map[string]string {
	return map[string]string{
		"format": fmt.Sprintf(""+
			"1:time:unix_ms,"+
			"2:label:cell,"+
			"3:label:la,"+
			"4:label:lo,"+
			"5:metric:%[1]s_precip", metricPrefix),
	}
}

type recToTextFunc func(*strings.Builder, *Record, string)

// recsToText converts multiple records to text.
func recsToText(recs []Record, metricPrefix string, recToText recToTextFunc) io.Reader {
	var sb strings.Builder
	for _, r := range recs {
		recToText(&sb, &r, metricPrefix)
		sb.WriteString("\n")
	}
	return strings.NewReader(sb.String())
}

var recToTextFuncs = map[string]recToTextFunc{
	"/influx/write":        recToInfluxDB,
	"/influx/api/v2/write": recToInfluxDB,
	"/write":               recToInfluxDB,
	"/api/v2/write":        recToInfluxDB,
	"/api/v1/import/csv":   recToCSV,
}

var influxDBFmt = "%s,cell=%d,la=%.2f,lo=%.2f precip=%g %d"

// recToInfluxDB converts a record into InfluxDB line protocol v2 and
// appends it to the string builder.
func recToInfluxDB(sb *strings.Builder, r *Record, metricPrefix string) {
	sb.WriteString(fmt.Sprintf(influxDBFmt, []any{
		metricPrefix,
		r.Cell,
		r.Latitude,
		r.Longitude,
		r.Precipitation,
		r.Timestamp,
	}...))
}

var csvFmt = "%d,%d,%.2f,%.2f,%g"

// recToCSV converts a record into a CSV record and appends it to the string
// builder.
func recToCSV(sb *strings.Builder, r *Record, _ string) {
	sb.WriteString(fmt.Sprintf(csvFmt, []any{
		r.Timestamp,
		r.Cell,
		r.Latitude,
		r.Longitude,
		r.Precipitation,
	}...))
}
