package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (rs *RestServer) handleShop(c *gin.Context) {
	offers, err := rs.shop.Catalog(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Магазин", gin.H{"offers": offers})
}

func (rs *RestServer) handleInventory(c *gin.Context) {
	items, err := rs.shop.Owned(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Инвентарь", gin.H{"items": items})
}

// handleBuy покупка предмета :item за шарды
func (rs *RestServer) handleBuy(c *gin.Context) {
	trade, err := rs.shop.Buy(c.Request.Context(), actorFrom(c).UserID, c.Param("item"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Предмет куплен", trade)
}

// handleSell продажа предмета :item с частичным возвратом цены
func (rs *RestServer) handleSell(c *gin.Context) {
	trade, err := rs.shop.Sell(c.Request.Context(), actorFrom(c).UserID, c.Param("item"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Предмет продан", trade)
}
