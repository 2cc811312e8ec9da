package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/saga-commerce/internal/interface/http/dto"
	"github.com/xiebiao/saga-commerce/pkg/dlq"
	"github.com/xiebiao/saga-commerce/pkg/response"
)

// DLQHandler 死信队列operator triage接口
// 这是唯一允许直接操作死信记录的入口——没有对应的saga流程，纯粹是人工介入
type DLQHandler struct {
	store       *dlq.Store
	reprocessor dlq.Reprocessor
}

// NewDLQHandler 创建死信队列处理器
func NewDLQHandler(store *dlq.Store, reprocessor dlq.Reprocessor) *DLQHandler {
	return &DLQHandler{store: store, reprocessor: reprocessor}
}

// ListDeadLetters 按服务查询死信记录
// @Summary      查询死信队列
// @Description  operator按服务名查看待处理的死信记录，用于排查saga步骤反复失败的原因
// @Tags         死信队列
// @Produce      json
// @Security     BearerAuth
// @Param        service query string false "服务名过滤，如payment-service"
// @Param        limit query int false "返回条数上限，默认50"
// @Success      200 {object} response.Response{data=dto.ListDeadLettersResponse}
// @Failure      400 {object} response.Response "参数错误"
// @Router       /api/v1/admin/dlq [get]
func (h *DLQHandler) ListDeadLetters(c *gin.Context) {
	var req dto.ListDeadLettersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}

	entries, err := h.store.List(c.Request.Context(), req.Service, req.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	list := make([]dto.DeadLetterEntry, len(entries))
	for i, e := range entries {
		list[i] = dto.ToDeadLetterEntry(e.ID, e.EventID, e.EventType, e.CorrelationID, e.Service, e.Reason, e.OperatorNote, e.Reprocessed, e.MovedAt)
	}

	response.Success(c, &dto.ListDeadLettersResponse{List: list, Total: len(list)})
}

// AddOperatorNote 给一条死信记录附加排查备注
// @Summary      死信记录添加备注
// @Description  operator记录根因排查结论，便于后续决定是否reprocess
// @Tags         死信队列
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "死信记录ID"
// @Param        request body dto.AddOperatorNoteRequest true "备注内容"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.Response "参数错误"
// @Router       /api/v1/admin/dlq/{id}/note [post]
func (h *DLQHandler) AddOperatorNote(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: id必须是数字")
		return
	}

	var req dto.AddOperatorNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}

	if err := h.store.AddOperatorNote(c.Request.Context(), id, req.Note); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// ReprocessDeadLetter 把一条死信记录重新投递到指定topic
// @Summary      重新投递死信记录
// @Description  operator确认根因已解决后，把死信记录重新发布到请求中指定的topic；Store本身不做根因校验，完全依赖operator的判断
// @Tags         死信队列
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "死信记录ID"
// @Param        request body dto.ReprocessDeadLetterRequest true "目标topic"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.Response "参数错误"
// @Router       /api/v1/admin/dlq/{id}/reprocess [post]
func (h *DLQHandler) ReprocessDeadLetter(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: id必须是数字")
		return
	}

	var req dto.ReprocessDeadLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}

	partitionCount := req.PartitionCount
	if partitionCount <= 0 {
		partitionCount = 4
	}

	if err := h.store.Reprocess(c.Request.Context(), id, req.Topic, partitionCount, h.reprocessor); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}
