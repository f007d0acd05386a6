package room

import "errors"

// ErrBadRequest names the bad-request condition (duplicate room name,
// invalid create/update form). The API handlers answer those cases with 400
// directly; nothing in this module returns ErrBadRequest.
var ErrBadRequest = errors.New("room: bad request")

// ErrContentTooLarge names the condition of an uploaded .torrent exceeding
// MAX_TORRENT_FILE_SIZE. The upload handler answers it with 413 directly;
// nothing in this module returns ErrContentTooLarge.
var ErrContentTooLarge = errors.New("room: uploaded torrent file too large")
