package main

// General API documentation for swaggo. Build with -tags=swagger to serve it
// under /swagger/.
//
// @title           ragd API
// @version         1.0
// @description     Local control plane for inference backends and a retrieval-augmented generation pipeline.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
