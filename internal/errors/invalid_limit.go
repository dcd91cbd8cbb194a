package errors

import "net/http"

var ErrInvalidLimit = &Exception{
	Message:    "limit must be positive",
	StatusCode: http.StatusBadRequest,
}

var ErrInvalidPage = &Exception{
	Message:    "page must be positive",
	StatusCode: http.StatusBadRequest,
}
