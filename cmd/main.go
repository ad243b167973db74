package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"referral-platform/internal/auth"
	"referral-platform/internal/blockchain"
	"referral-platform/internal/config"
	"referral-platform/internal/database"
	"referral-platform/internal/handlers"
	"referral-platform/internal/jobs"
	"referral-platform/internal/mailer"
	"referral-platform/internal/repository"
	"referral-platform/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Connect to Redis (OTP store)
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	otpStore := database.NewRedisOTPStore(rdb)

	// Outgoing mail
	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP)

	// Token transfer gateway
	solanaClient := blockchain.NewSolanaClient(
		cfg.Solana.Network,
		cfg.Solana.TokenMintAddress,
		cfg.Solana.ServerWalletPrivateKey,
	)

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Initialize services
	referralService := services.NewReferralService(database.GetDB())
	authService := services.NewAuthService(database.GetDB(), otpStore, smtpMailer, referralService)
	userService := services.NewUserService(database.GetDB())
	rewardService := services.NewRewardService(repo, solanaClient, referralService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userService)
	userHandler := handlers.NewUserHandler(userService, repo)
	referralHandler := handlers.NewReferralHandler(referralService, userService)
	rewardHandler := handlers.NewRewardHandler(rewardService, cfg.Solana.TransferTimeout)

	// Start reconcile job for transfers with unknown outcomes
	reconcileJob := jobs.NewReconcileJob(repo, solanaClient)
	reconcileJob.Start(5 * time.Minute)
	log.Println("Reconcile job started")

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.App.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.App.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/verify-otp", authHandler.VerifyOTP)
		authRoutes.POST("/resend-otp", authHandler.ResendOTP)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/password/forgot", authHandler.ForgotPassword)
		authRoutes.POST("/password/reset", authHandler.ResetPassword)
	}

	// Authenticated /auth routes
	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware())
	{
		authProtected.GET("/me", authHandler.GetMe)
		authProtected.POST("/password/change", authHandler.ChangePassword)
	}

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		// User endpoints
		userRoutes := api.Group("/user")
		{
			userRoutes.GET("/profile", userHandler.GetProfile)
			userRoutes.POST("/wallet", userHandler.LinkWallet)
			userRoutes.GET("/transactions", userHandler.GetTransactions)
			userRoutes.POST("/documents", userHandler.AddDocument)
			userRoutes.GET("/documents", userHandler.GetDocuments)
		}

		// Referral endpoints
		api.GET("/referral/code", referralHandler.GetReferralCode)
		api.POST("/referral/apply", referralHandler.ApplyReferralCode)
		api.GET("/referral/referrals", referralHandler.GetReferrals)

		// Reward distribution
		api.POST("/rewards/distribute", rewardHandler.DistributeReward)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
