package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/qutee-media/pkg/response"
)

type createPostRequest struct {
	Text  string `json:"text" binding:"required"`
	Image string `json:"image"`
	Name  string `json:"name"`
}

// RegisterUser 注册当前账户
// @Summary 注册用户
// @Tags 社交
// @Security BearerAuth
// @Produce json
// @Param address path string true "合约地址"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "user already registered"
// @Router /api/v1/media/{address}/register [post]
func (h *Handler) RegisterUser(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	from, ok := signer(c)
	if !ok {
		return
	}
	rcpt, err := h.media.Register(c.Request.Context(), media, from)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rcpt)
}

// IsUserRegistered 查询是否注册
// @Summary 是否已注册
// @Tags 社交
// @Produce json
// @Param address path string true "合约地址"
// @Param user path string true "用户地址"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/media/{address}/users/{user}/registered [get]
func (h *Handler) IsUserRegistered(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	user, ok := addressParam(c, "user")
	if !ok {
		return
	}
	registered, err := h.media.IsRegistered(c.Request.Context(), media, user)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"user": user, "registered": registered})
}

// CreatePost 发帖并铸造 NFT
// @Summary 发帖
// @Tags 社交
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param address path string true "合约地址"
// @Param request body createPostRequest true "帖子内容"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 400 {object} response.Response "user not registered"
// @Router /api/v1/media/{address}/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	from, ok := signer(c)
	if !ok {
		return
	}
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, rcpt, err := h.media.CreatePost(c.Request.Context(), media, from, req.Text, req.Image, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"post": post, "receipt": rcpt})
}

// ListPosts 全部帖子
// @Summary 帖子列表
// @Tags 社交
// @Produce json
// @Param address path string true "合约地址"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/media/{address}/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	posts, err := h.media.ListPosts(c.Request.Context(), media)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": posts, "total": len(posts)})
}

// NextPostID 下一个帖子 ID
// @Summary 下一个帖子 ID
// @Tags 社交
// @Produce json
// @Param address path string true "合约地址"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/media/{address}/posts/next-id [get]
func (h *Handler) NextPostID(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	id, err := h.media.NextPostID(c.Request.Context(), media)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"next_post_id": id})
}

// GetPost 查询单个帖子
// @Summary 帖子详情
// @Tags 社交
// @Produce json
// @Param address path string true "合约地址"
// @Param id path int true "帖子 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/media/{address}/posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	post, err := h.media.GetPost(c.Request.Context(), media, id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, post)
}

// Upvote 点赞
// @Summary 点赞
// @Tags 社交
// @Security BearerAuth
// @Produce json
// @Param address path string true "合约地址"
// @Param id path int true "帖子 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "already voted"
// @Router /api/v1/media/{address}/posts/{id}/upvote [post]
func (h *Handler) Upvote(c *gin.Context) {
	h.vote(c, true)
}

// Downvote 点踩
// @Summary 点踩
// @Tags 社交
// @Security BearerAuth
// @Produce json
// @Param address path string true "合约地址"
// @Param id path int true "帖子 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "already voted"
// @Router /api/v1/media/{address}/posts/{id}/downvote [post]
func (h *Handler) Downvote(c *gin.Context) {
	h.vote(c, false)
}

func (h *Handler) vote(c *gin.Context, up bool) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	from, ok := signer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	vote := h.media.Downvote
	if up {
		vote = h.media.Upvote
	}
	rcpt, err := vote(ctx, media, from, id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rcpt)
}

// RemovePost 管理员删帖
// @Summary 删帖（管理员）
// @Tags 社交
// @Security BearerAuth
// @Produce json
// @Param address path string true "合约地址"
// @Param id path int true "帖子 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "caller is not admin"
// @Router /api/v1/media/{address}/posts/{id} [delete]
func (h *Handler) RemovePost(c *gin.Context) {
	media, ok := addressParam(c, "address")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	from, ok := signer(c)
	if !ok {
		return
	}
	rcpt, err := h.media.RemovePost(c.Request.Context(), media, from, id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rcpt)
}

// GetToken NFT 详情
// @Summary NFT 详情
// @Tags NFT
// @Produce json
// @Param address path string true "工厂合约地址"
// @Param id path int true "Token ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/nft/{address}/tokens/{id} [get]
func (h *Handler) GetToken(c *gin.Context) {
	factory, ok := addressParam(c, "address")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	tok, err := h.media.Token(c.Request.Context(), factory, id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, tok)
}

// BalanceOf 持有 NFT 数量
// @Summary NFT 余额
// @Tags NFT
// @Produce json
// @Param address path string true "工厂合约地址"
// @Param owner path string true "持有者地址"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/nft/{address}/owners/{owner}/balance [get]
func (h *Handler) BalanceOf(c *gin.Context) {
	factory, ok := addressParam(c, "address")
	if !ok {
		return
	}
	owner, ok := addressParam(c, "owner")
	if !ok {
		return
	}
	n, err := h.media.Balance(c.Request.Context(), factory, owner)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"owner": owner, "balance": n})
}

// ListActivity 用户动态
// @Summary 用户动态（异步索引）
// @Tags 社交
// @Produce json
// @Param address path string true "用户地址"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/users/{address}/activity [get]
func (h *Handler) ListActivity(c *gin.Context) {
	user, ok := addressParam(c, "address")
	if !ok {
		return
	}
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	list, err := h.media.ListActivity(c.Request.Context(), user, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
