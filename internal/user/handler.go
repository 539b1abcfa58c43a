package user

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

// Handler exposes the member, admin and upload endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the handlers below api (normally /api).
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, guard *auth.Middleware) {
	authed := guard.RequireAuth()
	admin := guard.Require(auth.CapManageUsers)

	users := api.Group("/users")
	users.POST("/register", h.Register)
	users.POST("/login", h.Login)
	users.POST("/forgot-password", h.ForgotPassword)
	users.POST("/reset-password", h.ResetPassword)
	users.PUT("/reset-password", authed, admin, h.AdminResetPassword)
	users.GET("/profile", authed, h.Profile)
	users.PATCH("/update-profile", authed, h.UpdateProfile)
	users.GET("/all-users", authed, admin, h.AllUsers)
	users.POST("/send-id-email", authed, admin, h.SendIDCard)

	adm := api.Group("/admin", authed)
	adm.POST("/promote", guard.Require(auth.CapPromoteUsers), h.Promote)
	adm.PATCH("/verify-user", admin, h.VerifyUser)
	adm.PATCH("/users/:userIdToEdit", admin, h.UpdateUser)
	adm.DELETE("/delete/:userId", admin, h.DeleteUser)
	adm.DELETE("/users/:userId/receipts/:receiptId", admin, h.DeleteReceipt)
	adm.GET("/admin-verify", admin, h.AdminVerify)

	up := api.Group("/uploads")
	up.POST("/profile-picture", authed, h.UploadProfilePicture)
	up.POST("/receipt", authed, h.UploadReceipt)
	up.POST("/receipt-register", h.UploadMembershipReceipt)
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	apperror.Respond(c, h.logger, err, fallback)
}

// bind decodes a JSON body. Field-level decode failures that already carry a
// public message are passed through.
func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var st *apperror.Status
		if errors.As(err, &st) {
			h.fail(c, st, "")
			return false
		}
		h.logger.Debugw("invalid payload", "err", err, "path", c.FullPath())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body."})
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + "."})
		return 0, false
	}
	return id, true
}

func caller(c *gin.Context) int64 {
	p, _ := auth.FromContext(c)
	return p.UserID
}

func (h *Handler) Register(c *gin.Context) {
	var in RegisterInput
	if !h.bind(c, &in) {
		return
	}
	u, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "Server error while registering user.")
		return
	}
	sum := summarize(u)
	sum.CreatedAt = &u.CreatedAt
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully.", "user": sum})
}

func (h *Handler) Login(c *gin.Context) {
	var in LoginInput
	if !h.bind(c, &in) {
		return
	}
	in.IP = c.ClientIP()
	in.UserAgent = c.Request.UserAgent()
	res, err := h.svc.Login(c.Request.Context(), in)
	if err != nil {
		var st *apperror.Status
		if errors.As(err, &st) {
			body := gin.H{"success": false, "error": st.Message}
			for k, v := range st.Extra {
				body[k] = v
			}
			c.JSON(st.Code, body)
			return
		}
		h.fail(c, err, "Server error while logging in.")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful.",
		"token":   res.Token,
		"user":    summarize(res.User),
	})
}

func (h *Handler) Profile(c *gin.Context) {
	u, err := h.svc.Profile(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err, "Server error while fetching profile.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var p ProfilePatch
	if !h.bind(c, &p) {
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), caller(c), p)
	if err != nil {
		h.fail(c, err, "Server error while updating profile.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": gin.H{
		"_id":        strconv.FormatInt(u.ID, 10),
		"fullName":   u.FullName,
		"username":   u.Username,
		"email":      u.Email,
		"address":    u.Address,
		"contact":    u.Contact,
		"profession": u.Profession,
	}})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
	}
	if !h.bind(c, &in) {
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), in.Email); err != nil {
		h.fail(c, err, "Server error while processing request.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": MsgResetSent})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !h.bind(c, &in) {
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), in.Token, in.NewPassword); err != nil {
		h.fail(c, err, "Server error while resetting password.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully."})
}

func (h *Handler) AdminResetPassword(c *gin.Context) {
	var in struct {
		ID int64 `json:"_id,string"`
	}
	if !h.bind(c, &in) {
		return
	}
	u, err := h.svc.AdminResetPassword(c.Request.Context(), in.ID)
	if err != nil {
		h.fail(c, err, "Server error while updating password.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully.", "user": summarize(u)})
}

func (h *Handler) AllUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Error fetching users.")
		return
	}
	if users == nil {
		users = []*entity.User{}
	}
	c.JSON(http.StatusOK, gin.H{"totalUsers": len(users), "users": users})
}

func (h *Handler) SendIDCard(c *gin.Context) {
	var in struct {
		Image    string `json:"image"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if !h.bind(c, &in) {
		return
	}
	if err := h.svc.SendIDCard(c.Request.Context(), in.Image, in.FullName, in.Email); err != nil {
		var st *apperror.Status
		if errors.As(err, &st) {
			c.JSON(st.Code, gin.H{"success": false, "message": st.Message})
			return
		}
		h.logger.Errorw("send id card", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error sending email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email sent with ID Card"})
}

func (h *Handler) Promote(c *gin.Context) {
	var in struct {
		UserIDToPromote int64 `json:"userIdToPromote,string"`
		MakeAdmin       bool  `json:"makeAdmin"`
	}
	if !h.bind(c, &in) {
		return
	}
	u, err := h.svc.Promote(c.Request.Context(), in.UserIDToPromote, in.MakeAdmin)
	if err != nil {
		h.fail(c, err, "Server error promoting user.")
		return
	}
	msg := "User demoted to user."
	if in.MakeAdmin {
		msg = "User promoted to admin."
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "user": entity.Summary{ID: u.ID, Username: u.Username, Role: u.Role}})
}

func (h *Handler) VerifyUser(c *gin.Context) {
	var in VerifyInput
	if !h.bind(c, &in) {
		return
	}
	u, err := h.svc.VerifyUser(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "Server error while updating user status.")
		return
	}
	paid := u.MembershipPaid
	c.JSON(http.StatusOK, gin.H{
		"message": "User status updated successfully.",
		"user": entity.Summary{
			ID:             u.ID,
			Username:       u.Username,
			AccountStatus:  u.AccountStatus,
			AccountExpiry:  u.AccountExpiry,
			MembershipPaid: &paid,
		},
	})
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "userIdToEdit")
	if !ok {
		return
	}
	var p AdminPatch
	if !h.bind(c, &p) {
		return
	}
	u, err := h.svc.UpdateUser(c.Request.Context(), id, p)
	if err != nil {
		h.fail(c, err, "Server error while updating user details.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully by admin.", "user": u})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "userId")
	if !ok {
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	// the reason is optional and DELETE bodies are often empty
	_ = c.ShouldBindJSON(&in)
	u, err := h.svc.DeleteUser(c.Request.Context(), id, caller(c), in.Reason)
	if err != nil {
		h.fail(c, err, "Server error while deleting user.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User " + u.FullName + " has been deleted."})
}

func (h *Handler) DeleteReceipt(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	receiptID, ok := paramID(c, "receiptId")
	if !ok {
		return
	}
	if err := h.svc.DeleteReceipt(c.Request.Context(), userID, receiptID); err != nil {
		h.fail(c, err, "Server error while deleting receipt.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "receipt has been deleted."})
}

func (h *Handler) AdminVerify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "User is an admin."})
}

func (h *Handler) UploadProfilePicture(c *gin.Context) {
	f, closer, err := upload.FromForm(c, "profilePicture", upload.CategoryProfilePictures)
	if err != nil {
		h.fail(c, err, "Server error while uploading profile picture.")
		return
	}
	defer closer.Close()
	path, err := h.svc.SetProfilePicture(c.Request.Context(), caller(c), f)
	if err != nil {
		h.fail(c, err, "Server error while uploading profile picture.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile picture added successfully.", "profilePicture": path})
}

func (h *Handler) UploadReceipt(c *gin.Context) {
	f, closer, err := upload.FromForm(c, "receipt", upload.CategoryReceipts)
	if err != nil {
		h.fail(c, err, "Server error while uploading receipt.")
		return
	}
	defer closer.Close()
	receipts, err := h.svc.AddReceipt(c.Request.Context(), caller(c), f)
	if err != nil {
		h.fail(c, err, "Server error while uploading receipt.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Receipt uploaded successfully.", "receipts": receipts})
}

// UploadMembershipReceipt is public: it runs right after registration,
// before the member can sign in.
func (h *Handler) UploadMembershipReceipt(c *gin.Context) {
	f, closer, err := upload.FromForm(c, "membership-receipt", upload.CategoryMembershipReceipt)
	if err != nil {
		h.fail(c, err, "Server error while uploading receipt.")
		return
	}
	defer closer.Close()
	userID, err := strconv.ParseInt(c.PostForm("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required."})
		return
	}
	mr, err := h.svc.SubmitMembershipReceipt(c.Request.Context(), userID, f)
	if err != nil {
		h.fail(c, err, "Server error while uploading receipt.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Receipt uploaded successfully.", "membershipReceipt": mr})
}
