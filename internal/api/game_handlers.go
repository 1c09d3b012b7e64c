package api

import (
	"net/http"

	"github.com/annel0/shard-realms/internal/battle"
	"github.com/gin-gonic/gin"
)

// CreateWorldRequest запрос создания мира; без имени мир называется "New World"
type CreateWorldRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

// HostRequest адрес размещения; пустой снимает пометку
type HostRequest struct {
	Address string `json:"address"`
}

// MoveRequest шаг на соседнюю клетку
type MoveRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// TeleportRequest перемещение на клетку (x, y)
type TeleportRequest struct {
	X *int `json:"x" binding:"required"`
	Y *int `json:"y" binding:"required"`
}

// AttackRequest ход предметом
type AttackRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// ResolveRequest ручной исход встречи: "win" или "lose"
type ResolveRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (rs *RestServer) handleListWorlds(c *gin.Context) {
	worlds, err := rs.engine.ListWorlds(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Список миров", gin.H{"worlds": worlds, "total": len(worlds)})
}

func (rs *RestServer) handleCreateWorld(c *gin.Context) {
	var req CreateWorldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	w, err := rs.engine.CreateWorld(c.Request.Context(), actorFrom(c), req.Name, req.IsPublic)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, "Мир создан", w.Summarize())
}

func (rs *RestServer) handleShowWorld(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	view, err := rs.engine.ShowWorld(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Мир", view)
}

func (rs *RestServer) handleDestroyWorld(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := rs.engine.DestroyWorld(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Мир удалён", nil)
}

func (rs *RestServer) handleJoinWorld(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	w, err := rs.engine.JoinWorld(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Вы вошли в мир", w.Summarize())
}

func (rs *RestServer) handleHostWorld(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req HostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	w, err := rs.engine.HostWorld(c.Request.Context(), actorFrom(c), id, req.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Размещение обновлено", w.Summarize())
}

func (rs *RestServer) handleMove(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	res, err := rs.engine.MoveAdjacent(c.Request.Context(), actorFrom(c), id, req.Direction)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Ход выполнен", res)
}

func (rs *RestServer) handleTeleport(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req TeleportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	res, err := rs.engine.MoveToCoordinate(c.Request.Context(), actorFrom(c), id, *req.X, *req.Y)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Перемещение выполнено", res)
}

func (rs *RestServer) handleAttack(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req AttackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	res, err := rs.engine.Attack(c.Request.Context(), actorFrom(c), id, req.ItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Атака выполнена", res)
}

func (rs *RestServer) handleResolve(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	res, err := rs.engine.ResolveEncounter(c.Request.Context(), actorFrom(c), id, req.Outcome)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Встреча разрешена", res)
}

func (rs *RestServer) handleAcknowledge(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := rs.engine.AcknowledgeEncounter(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Встреча подтверждена", nil)
}

func (rs *RestServer) handleAchievements(c *gin.Context) {
	list, err := rs.engine.Achievements(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Достижения", gin.H{"achievements": list})
}

func (rs *RestServer) handleClaim(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	reward, balance, err := rs.engine.ClaimAchievement(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Награда получена", gin.H{"reward": reward, "balance": balance})
}

func (rs *RestServer) handleBalance(c *gin.Context) {
	balance, err := rs.engine.Balance(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Баланс", gin.H{"balance": balance})
}

func (rs *RestServer) handleItems(c *gin.Context) {
	respondOK(c, http.StatusOK, "Предметы", gin.H{"items": battle.Items()})
}
