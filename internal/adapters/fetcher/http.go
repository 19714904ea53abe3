package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"price-tracker-bot/internal/infra/metrics"
)

const maxBodySize = 8 << 20

// doRequest выполняет запрос и читает тело ответа с ограничением размера.
func doRequest(ctx context.Context, client *http.Client, req *http.Request, component, operation string) (int, []byte, error) {
	req = req.WithContext(ctx)
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest(component, operation, req.URL.Host, start, err)
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err == nil && resp.StatusCode >= 300 {
		metrics.ObserveNetworkRequest(component, operation, req.URL.Host, start, fmt.Errorf("status %d", resp.StatusCode))
	} else {
		metrics.ObserveNetworkRequest(component, operation, req.URL.Host, start, err)
	}
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// rawPrice превращает значение JSON в сырую цену без потери точности.
func rawPrice(r gjson.Result) any {
	switch r.Type {
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	}
	return nil
}

func truncate(body []byte) string {
	const limit = 2048
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
