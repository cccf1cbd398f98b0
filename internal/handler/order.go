package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, invalidInput("reading body: %s", err))
		return
	}
	req, err := decodeOrderRequest(jx.DecodeBytes(body))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeResult(&e, res)
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// GetOrder handles GET /orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, invalidInput("order id %q is not a positive integer", raw))
		return
	}

	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// decodeOrderRequest reads an order request. Both camelCase and snake_case
// keys are accepted, and legacy {pizzaId, quantity} lines become pizza refs.
func decodeOrderRequest(d *jx.Decoder) (order.Request, error) {
	var (
		req         order.Request
		hasCustomer bool
	)
	if d.Next() != jx.Object {
		return req, invalidInput("request body must be a JSON object")
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "customerId", "customer_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			id, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "customerId")
			}
			req.CustomerID = &id
		case "customer":
			if d.Next() == jx.Null {
				return d.Null()
			}
			in, err := decodeCustomer(d)
			if err != nil {
				return errors.Wrap(err, "customer")
			}
			req.Customer = &in
			hasCustomer = true
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "discountCode", "discount_code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "discountCode")
			}
			req.DiscountCode = s
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return req, asInvalidInput(err)
	}
	if req.CustomerID != nil && hasCustomer {
		return req, invalidInput("customerId and customer are mutually exclusive")
	}
	return req, nil
}

func decodeCustomer(d *jx.Decoder) (customer.Input, error) {
	var in customer.Input
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var dst *string
		switch string(key) {
		case "name":
			dst = &in.Name
		case "email":
			dst = &in.Email
		case "phone":
			dst = &in.Phone
		case "address":
			dst = &in.Address
		case "birthday", "birthdate", "birth_date":
			dst = &in.Birthday
		default:
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		s, err := d.Str()
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		*dst = s
		return nil
	})
	return in, err
}

// decodeItem reads one cart line. A missing quantity means one unit.
func decodeItem(d *jx.Decoder) (order.LineRequest, error) {
	line := order.LineRequest{Quantity: 1}
	var (
		itemID, pizzaID *int64
		itemType        string
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "itemId", "item_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "itemId")
			}
			itemID = &v
		case "pizzaId", "pizza_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "pizzaId")
			}
			pizzaID = &v
		case "itemType", "item_type":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "itemType")
			}
			itemType = v
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			line.Quantity = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return line, err
	}

	switch {
	case itemID != nil && pizzaID != nil:
		return line, errors.New("itemId and pizzaId are mutually exclusive")
	case pizzaID != nil:
		if itemType != "" && itemType != string(catalog.KindPizza) {
			return line, errors.Errorf("pizzaId with itemType %q", itemType)
		}
		line.Ref = catalog.ItemRef{Kind: catalog.KindPizza, ID: *pizzaID}
	case itemID != nil:
		if itemType == "" {
			return line, errors.New("itemType is required with itemId")
		}
		kind, err := catalog.ParseKind(itemType)
		if err != nil {
			return line, err
		}
		line.Ref = catalog.ItemRef{Kind: kind, ID: *itemID}
	default:
		return line, errors.New("itemId or pizzaId is required")
	}
	return line, nil
}

func encodeResult(e *jx.Encoder, res *order.Result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(res.OrderID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Int64(res.CustomerID) })
		e.Field("customerName", func(e *jx.Encoder) { e.Str(res.CustomerName) })
		e.Field("total", func(e *jx.Encoder) { e.Num(jx.Num(res.Total.StringFixed(2))) })
		e.Field("deliveryAgentName", func(e *jx.Encoder) { optStr(e, res.DeliveryAgentName) })
		e.Field("discountApplied", func(e *jx.Encoder) { optStr(e, res.DiscountApplied) })
		e.Field("itemsCount", func(e *jx.Encoder) { e.Int(res.ItemsCount) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Int64(o.CustomerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total", func(e *jx.Encoder) { e.Num(jx.Num(o.Total.StringFixed(2))) })
		e.Field("discountCode", func(e *jx.Encoder) { optStr(e, o.DiscountCode) })
		e.Field("deliveryAgentId", func(e *jx.Encoder) {
			if o.DeliveryAgentID == nil {
				e.Null()
				return
			}
			e.Int64(*o.DeliveryAgentID)
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("itemType", func(e *jx.Encoder) { e.Str(string(l.Ref.Kind)) })
						e.Field("itemId", func(e *jx.Encoder) { e.Int64(l.Ref.ID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { e.Num(jx.Num(l.UnitPrice.StringFixed(2))) })
					})
				}
			})
		})
	})
}

func optStr(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}
