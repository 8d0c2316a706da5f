// Package binance implements exchange.Gateway on the USDⓈ-M futures REST API.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/logger"
	symbolpkg "bracketbot/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// Client wraps the go-binance futures client.
type Client struct {
	cfg    Config
	client *futures.Client
}

var _ exchange.Gateway = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	logger.Infof("Binance futures gateway base=%s timeout=%s testnet=%v", final.RESTBaseURL, final.HTTPTimeout, final.Testnet)
	return &Client{cfg: final, client: client}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (int64, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(symbolpkg.Binance.ToExchange(req.Symbol)).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type))
	if req.TimeInForce != "" {
		svc = svc.TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}
	if req.Quantity.IsPositive() {
		svc = svc.Quantity(req.Quantity.String())
	}
	if req.Price.IsPositive() {
		svc = svc.Price(req.Price.String())
	}
	if req.StopPrice.IsPositive() {
		svc = svc.StopPrice(req.StopPrice.String())
	}
	if req.ClosePosition {
		svc = svc.ClosePosition(true)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return 0, wrapErr("create order", err)
	}
	if res == nil || res.OrderID == 0 {
		return 0, exchange.ErrMissingOrderID
	}
	return res.OrderID, nil
}

func (c *Client) QueryOrder(ctx context.Context, symbol string, orderID int64) (exchange.Order, error) {
	o, err := c.client.NewGetOrderService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return exchange.Order{}, wrapErr("query order", err)
	}
	if o == nil {
		return exchange.Order{}, fmt.Errorf("query order %d: empty response", orderID)
	}
	return exchange.Order{
		Symbol:      o.Symbol,
		OrderID:     o.OrderID,
		Status:      exchange.OrderStatus(o.Status),
		Side:        exchange.Side(o.Side),
		Type:        exchange.OrderType(o.Type),
		AvgPrice:    parseDecimal(o.AvgPrice),
		ExecutedQty: parseDecimal(o.ExecutedQuantity),
		OrigQty:     parseDecimal(o.OrigQuantity),
		UpdatedAt:   time.UnixMilli(o.UpdateTime),
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := c.client.NewCancelOrderService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		OrderID(orderID).
		Do(ctx)
	return wrapErr("cancel order", err)
}

func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	err := c.client.NewCancelAllOpenOrdersService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		Do(ctx)
	return wrapErr("cancel all open orders", err)
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.client.NewChangeLeverageService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		Leverage(leverage).
		Do(ctx)
	return wrapErr("change leverage", err)
}

// wrapErr converts SDK api errors into exchange.APIError and adds context.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &exchange.APIError{Code: apiErr.Code, Message: apiErr.Message})
	}
	return fmt.Errorf("%s: %w", op, err)
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}
