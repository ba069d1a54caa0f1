package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AShareProvider fetches A-share quotes from a Sina/Tencent-style endpoint
// that returns a semicolon/comma framed response, one line per code:
//
//	var hq_str_sh600000="浦发银行,10.50,10.40,10.55,...";
//
// The 4th comma-separated field (index 3) is the last-trade price for the
// Sina wire format this provider targets.
type AShareProvider struct {
	baseURL    string
	httpClient *http.Client
	name       string
}

// NewAShareProvider builds a provider against baseURL (expects the code,
// with exchange prefix, appended directly — e.g. "...list=sh600000").
func NewAShareProvider(name, baseURL string, timeout time.Duration) *AShareProvider {
	return &AShareProvider{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *AShareProvider) Name() string { return p.name }

// prefixedCode infers the exchange prefix from the leading digits of a
// 6-digit A-share code: 60x/68x trade on Shanghai (sh), 00x/30x on
// Shenzhen (sz).
func prefixedCode(code string) (string, error) {
	if strings.HasPrefix(code, "sh") || strings.HasPrefix(code, "sz") {
		return code, nil
	}
	if len(code) != 6 {
		return "", fmt.Errorf("invalid A-share code %q", code)
	}
	switch code[:2] {
	case "60", "68":
		return "sh" + code, nil
	case "00", "30":
		return "sz" + code, nil
	default:
		return "", fmt.Errorf("unrecognized A-share code prefix %q", code)
	}
}

func (p *AShareProvider) Fetch(ctx context.Context, code string) (Quote, error) {
	wireCode, err := prefixedCode(code)
	if err != nil {
		return Quote{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+wireCode, nil)
	if err != nil {
		return Quote{}, err
	}
	// Upstream wire endpoints reject requests without a Referer.
	req.Header.Set("Referer", "https://finance.sina.com.cn")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Quote{}, err
	}
	if res.StatusCode >= 300 {
		return Quote{}, fmt.Errorf("ashare quote %s status %d", wireCode, res.StatusCode)
	}

	price, err := parseSinaPrice(string(body))
	if err != nil {
		return Quote{}, fmt.Errorf("ashare quote %s malformed payload: %w", wireCode, err)
	}

	return Quote{Code: code, Price: price, Source: p.name}, nil
}

// parseSinaPrice extracts the last-trade price (the 4th field, index 3) from
// a line shaped like var hq_str_sh600000="name,open,prev_close,price,...";
func parseSinaPrice(body string) (float64, error) {
	start := strings.Index(body, "\"")
	end := strings.LastIndex(body, "\"")
	if start < 0 || end <= start {
		return 0, fmt.Errorf("no quoted payload found")
	}
	fields := strings.Split(body[start+1:end], ",")
	if len(fields) < 4 {
		return 0, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}
	price, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return 0, fmt.Errorf("parse price field: %w", err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %v", price)
	}
	return price, nil
}
