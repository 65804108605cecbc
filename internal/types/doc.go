/*
Package types defines core data structures used throughout halcrud.

# Overview

The types package provides shared type definitions for:
  - Resource descriptions (fields, required keys, table columns, messages)
  - API connection settings (base URL, headers, TLS, OAuth)
  - Operation history records

# Resource Types

ResourceConfig:
  - Collection and search URLs
  - Name of the array inside the HAL _embedded envelope
  - Ordered editable fields and the subset required to submit
  - Optional listing columns and localized messages

ResourceConfig is validated once, when a client is constructed, and treated as
immutable afterwards.

# Connection Types

APIConfig:
  - Base URL that relative HAL links resolve against
  - Default headers sent with every request
  - Timeout, TLS and OAuth client-credentials settings

# Example

	rc := types.ResourceConfig{
		Name:          "widgets",
		ItemLabel:     "widget",
		CollectionURL: "/widgets",
		SearchURL:     "/widgets/search",
		EmbeddedKey:   "widgets",
		Fields: []types.Field{
			{Key: "name", Label: "Name"},
			{Key: "color", Label: "Color"},
		},
	}
	if err := rc.Validate(); err != nil {
		return err
	}
*/
package types
