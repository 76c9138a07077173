package httpapi

import "errors"

var errMissingQuery = errors.New("httpapi: query must not be empty")
