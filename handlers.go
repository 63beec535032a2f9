package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nutriscan/models"
	"nutriscan/pkg/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const maxUploadBytes = 10 * 1024 * 1024

func setupRoutes(r *gin.Engine) {
	r.POST("/predict", predictHandler)
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/profile", createProfileHandler)
	authGroup.GET("/profile", getProfileHandler)
	authGroup.POST("/scans", createScanHandler)
	authGroup.GET("/scans", listScansHandler)
	authGroup.GET("/scans/:id", getScanHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	username := usernameVal.(string)
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// getUserFromContext fetches the currently authenticated user using the username set by jwtAuthMiddleware
func getUserFromContext(c *gin.Context) (*models.User, bool) {
	unameVal, _ := c.Get("username")
	if unameVal == nil {
		return nil, false
	}
	uname := unameVal.(string)
	var user models.User
	if err := db.Where("username = ?", uname).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

// readUploadedImage locates the upload under either accepted field name and
// reads it fully into memory.
func readUploadedImage(c *gin.Context) ([]byte, *multipart.FileHeader, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		fh, err = c.FormFile("image")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("no file uploaded")
	}
	if fh.Size > maxUploadBytes {
		return nil, nil, fmt.Errorf("file too large (max %dMB)", maxUploadBytes/(1024*1024))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	return data, fh, nil
}

// saveDebugCopy writes the raw upload under UPLOAD_BASE for later inspection.
// Best effort: a failure is logged, never fatal to the request.
func saveDebugCopy(data []byte) string {
	dir := filepath.Join(uploadBaseDir(), "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("debug dir: %v", err)
		return ""
	}
	name := filepath.Join(dir, fmt.Sprintf("upload_%s.jpg", time.Now().Format("20060102_150405.000")))
	if err := os.WriteFile(name, data, 0644); err != nil {
		log.Printf("debug save: %v", err)
		return ""
	}
	return name
}

// predictHandler runs the full pipeline over an uploaded label photo without
// requiring an account. This mirrors the public prediction contract: every
// failure path yields a structured {ok:false} body.
func predictHandler(c *gin.Context) {
	data, fh, err := readUploadedImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no file uploaded", "detail": err.Error()})
		return
	}
	if saved := saveDebugCopy(data); saved != "" {
		log.Printf("saved upload %s to %s (size=%d)", fh.Filename, saved, len(data))
	}
	res, err := predictor.Predict(data, refTable.Current())
	if err != nil {
		if errors.Is(err, pipeline.ErrDecode) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "undecodable image", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server error", "detail": err.Error()})
		return
	}
	log.Printf("predict %s: %s", fh.Filename, res.Summary())
	c.JSON(http.StatusOK, predictionBody(res))
}

func predictionBody(res pipeline.Result) gin.H {
	return gin.H{
		"ok":               true,
		"ocr_text":         res.OCRText,
		"ingredients_text": res.IngredientsText,
		"tokens":           res.Tokens,
		"allergens":        res.Allergens,
		"health_score":     res.HealthScore,
	}
}

// createScanHandler runs the pipeline for the caller's profile and persists
// the result. Re-submitting the same file name updates the existing record.
func createScanHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var profile models.Profile
	if err := db.Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile missing"})
		return
	}
	data, fh, err := readUploadedImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no file uploaded", "detail": err.Error()})
		return
	}

	// keep the original next to the record so failed scans can be retried
	storeDir := filepath.Join(uploadBaseDir(), "scans")
	storePath := ""
	if err := os.MkdirAll(storeDir, 0755); err == nil {
		storePath = filepath.Join(storeDir, fh.Filename)
		if err := os.WriteFile(storePath, data, 0644); err != nil {
			log.Printf("store scan file: %v", err)
			storePath = ""
		}
	}

	scan := models.Scan{ProfileID: profile.ID, FileName: fh.Filename, StorePath: storePath, ContentType: fh.Header.Get("Content-Type")}
	var existing models.Scan
	if err := db.Where("profile_id = ? AND file_name = ?", profile.ID, fh.Filename).First(&existing).Error; err == nil {
		scan = existing
		scan.StorePath = storePath
	}

	res, err := predictor.Predict(data, refTable.Current())
	if err != nil {
		scan.Failed = true
		scan.FailedReason = err.Error()
		if saveErr := db.Save(&scan).Error; saveErr != nil {
			log.Printf("save failed scan: %v", saveErr)
		}
		if errors.Is(err, pipeline.ErrDecode) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "undecodable image", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server error", "detail": err.Error()})
		return
	}

	scan.Failed = false
	scan.FailedReason = ""
	scan.OCRText = res.OCRText
	scan.IngredientsText = res.IngredientsText
	scan.Allergens = strings.Join(res.Allergens, ",")
	scan.HealthScore = res.HealthScore
	scan.TokenCount = len(res.Tokens)
	if err := db.Save(&scan).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "db save failed", "detail": err.Error()})
		return
	}
	body := predictionBody(res)
	body["id"] = scan.ID
	c.JSON(http.StatusOK, body)
}

// listScansHandler returns scans; admin sees all, user only own profile's scans.
func listScansHandler(c *gin.Context) {
	role, _ := c.Get("role")
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var profile models.Profile
	db.Where("user_id = ?", user.ID).First(&profile)
	var scans []models.Scan
	q := db.Model(&models.Scan{})
	if role != "administrator" {
		q = q.Where("profile_id = ?", profile.ID)
	}
	if err := q.Order("id desc").Limit(100).Find(&scans).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, scans)
}

// getScanHandler returns a single scan if admin or owner.
func getScanHandler(c *gin.Context) {
	role, _ := c.Get("role")
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var profile models.Profile
	db.Where("user_id = ?", user.ID).First(&profile)
	id := c.Param("id")
	var scan models.Scan
	if err := db.First(&scan, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if role != "administrator" && scan.ProfileID != profile.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, scan)
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func createProfileHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile := models.Profile{UserID: user.ID, Name: req.Name, Email: req.Email}
	if err := db.Create(&profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": profile.ID})
}

func getProfileHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var p models.Profile
	if err := db.Where("user_id = ?", user.ID).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(15 * time.Minute).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// rotate refresh token: revoke existing and create new one
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}
