package main

import (
	"github.com/postalsys/pingdrop/internal/health"
	"github.com/postalsys/pingdrop/internal/sysinfo"
	"github.com/postalsys/pingdrop/internal/transfer"
)

// receiverStats exposes a transfer.Server to the health endpoints.
type receiverStats struct {
	srv *transfer.Server
}

func (r receiverStats) IsRunning() bool {
	return r.srv.Status().Running
}

func (r receiverStats) Stats() health.Stats {
	st := r.srv.Status()
	return health.Stats{
		EchoSuppressed: st.EchoSuppressed,
		TransferID:     st.TransferID,
		Filename:       st.Filename,
		TotalChunks:    st.TotalChunks,
		WriteCursor:    st.WriteCursor,
		PendingChunks:  st.Pending,
		BytesWritten:   st.BytesWritten,
		Completed:      st.Completed,
		Incomplete:     st.Incomplete,
		UptimeSeconds:  int64(sysinfo.Uptime().Seconds()),
	}
}
