/*
Package executor is the HAL+JSON transport used by the CRUD client.

# Overview

The executor package provides:
  - JSON requests with HAL-aware Accept headers
  - Resolution of relative HAL links against the API base URL
  - Cache-bypassing reads that report "not found" as a result, not an error
  - Partial updates that fall back to full replacement on 405
  - TLS/mTLS and OAuth client-credentials configuration

# Requests

Every request carries:
  - Accept: application/hal+json, application/json
  - X-Request-Id: a fresh UUID, logged with the outcome
  - The API's default headers from configuration

Writes carry Content-Type: application/json. FetchFresh adds Cache-Control and
Pragma no-cache headers.

# Errors

Any status outside 2xx becomes an *APIError holding the status and the decoded
body. IsNotFound, IsConflict (409 or 412) and IsMethodNotAllowed classify it.
Network failures are wrapped and returned as-is.

# Example Usage

	client, err := executor.New(ctx, executor.Options{
		API: types.APIConfig{BaseURL: "https://api.example.com"},
	})
	if err != nil {
		return err
	}

	fresh, err := client.FetchFresh(ctx, "/widgets/1")
	if err != nil {
		return err
	}
	if fresh == nil {
		// already deleted
	}

	_, err = client.WriteWithFallback(ctx, "/widgets/1", payload, map[string]string{
		executor.HeaderIfMatch: fresh.ETag,
	})

# Thread Safety

A Client holds no per-request state and is safe to use from several goroutines.
*/
package executor
