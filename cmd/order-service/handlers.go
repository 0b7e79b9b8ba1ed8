package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/GustavoBurock01/pizza-club-digital-menu-sub000/docs"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/httpx"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/order"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/payment"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/ratelimit"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/user"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/webhook"
)

func newRouter(svc *order.Service, sessions user.Repository, wh *webhook.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.POST("/webhooks/payment", wh.HandleNotification)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := r.Group("/", httpx.Auth(sessions))
	auth.POST("/orders", createOrderHandler(svc))
	auth.GET("/orders", listOrdersHandler(svc))
	auth.GET("/orders/:id", getOrderHandler(svc))
	auth.GET("/orders/:id/payment", getPaymentHandler(svc))

	return r
}

// createOrderHandler admits an order and settles a PIX payment for it.
// @Summary      Create an order
// @Description  Runs the admission gates, creates a PIX payment and persists the order.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        request body order.CreateOrderRequest true "order payload"
// @Success      200 {object} order.CreateOrderResult
// @Failure      400 {object} map[string]any
// @Failure      401 {object} map[string]any
// @Failure      429 {object} map[string]any
// @Router       /orders [post]
func createOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}

		caller := order.Caller{ID: c.GetString(httpx.CtxUserID), Email: c.GetString(httpx.CtxUserEmail)}
		res, err := svc.CreateOrder(c.Request.Context(), caller, req)
		if err != nil {
			writeCreateOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func writeCreateOrderError(c *gin.Context, err error) {
	var closed *order.StoreClosedError
	var invalid *order.ValidationError
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "message": err.Error()})
	case errors.Is(err, ratelimit.ErrTooManyPending):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "concurrency limit exceeded", "message": err.Error()})
	case errors.As(err, &closed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "store closed", "details": closed.Reason, "nextOpening": closed.NextOpening})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "product validation failed", "details": invalid.Details})
	case errors.Is(err, order.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
	default:
		// Gateway and persistence failures: detail stays in the logs.
		log.Error().Err(err).Msg("handler: order creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create order"})
	}
}

// getOrderHandler returns one of the caller's orders with its items.
// @Summary      Get an order
// @Tags         orders
// @Produce      json
// @Param        id path string true "order id"
// @Success      200 {object} map[string]any
// @Failure      404 {object} map[string]any
// @Router       /orders/{id} [get]
func getOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, items, err := svc.GetOrder(c.Request.Context(), c.GetString(httpx.CtxUserID), c.Param("id"))
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load order"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

// listOrdersHandler lists the caller's orders, newest first.
// @Summary      List orders
// @Tags         orders
// @Produce      json
// @Param        limit query int false "page size"
// @Param        offset query int false "page offset"
// @Success      200 {object} map[string]any
// @Router       /orders [get]
func listOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		orders, err := svc.ListOrders(c.Request.Context(), c.GetString(httpx.CtxUserID), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list orders"})
			return
		}
		if orders == nil {
			orders = []order.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"items": orders, "limit": limit, "offset": offset})
	}
}

// getPaymentHandler returns the stored payment mirror for the payment screen.
// @Summary      Get order payment
// @Tags         orders
// @Produce      json
// @Param        id path string true "order id"
// @Success      200 {object} payment.Intent
// @Failure      404 {object} map[string]any
// @Router       /orders/{id}/payment [get]
func getPaymentHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		in, err := svc.GetPayment(c.Request.Context(), c.GetString(httpx.CtxUserID), c.Param("id"))
		if err != nil {
			if errors.Is(err, order.ErrNotFound) || errors.Is(err, payment.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load payment"})
			return
		}
		c.JSON(http.StatusOK, in)
	}
}
