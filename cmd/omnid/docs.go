package main

// General API documentation for swaggo. Run `swag init -g cmd/omnid/docs.go -o internal/apidocs` to regenerate.
//
// @title           omnid API
// @version         1.0
// @description     OpenAI-compatible HTTP API for local chat completion, model management and speech recognition.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
