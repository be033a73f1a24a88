package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	gberr "github.com/arkilian/gridbench/internal/errors"
)

// classify maps a driver error onto the store error taxonomy: deadlines become
// query timeouts, lost or unusable connections become connectivity failures,
// and everything else is a failed statement.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var ge *gberr.GridError
	if errors.As(err, &ge) {
		return err
	}

	msg := fmt.Sprintf("%s failed", op)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return gberr.QueryTimeout(msg, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return gberr.StoreConnectivity(msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return gberr.QueryTimeout(msg, err)
		}
		return gberr.StoreConnectivity(msg, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "57014": // query_canceled, raised by statement_timeout
			return gberr.QueryTimeout(msg, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57": // connection exception, operator intervention
			return gberr.StoreConnectivity(msg, err)
		}
		return gberr.StatementFailed(msg, err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrInterrupt:
			return gberr.QueryTimeout(msg, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return gberr.StoreConnectivity(msg, err)
		}
		return gberr.StatementFailed(msg, err)
	}

	// database/sql reports use of a closed pool with an unexported error
	if strings.Contains(err.Error(), "database is closed") {
		return gberr.StoreConnectivity(msg, err)
	}

	return gberr.StatementFailed(msg, err)
}
