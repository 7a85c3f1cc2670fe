package main

import (
	"os"

	"github.com/KuzeyMurathan/shadchat/internal/app"
)

// @title           shadchat API
// @version         1.0
// @description     Vendor-agnostic LLM chat server: one API over OpenAI, Anthropic, Gemini, xAI, Groq and OpenRouter, with streaming, retry and cost estimation.

// @host      localhost:8000
// @BasePath  /api
func main() {
	os.Exit(app.Run())
}
