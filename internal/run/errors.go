package run

import "errors"

var (
	ErrNoFileSelected = errors.New("please select a video file")
	ErrTooManyFiles   = errors.New("only one video file can be converted at a time")
	ErrBusy           = errors.New("a conversion is already running")
)
