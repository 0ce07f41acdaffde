// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

// QUOTA_UPDATE is the type code of the quota control message.
const QUOTA_UPDATE uint16 = 0x05

// QuotaUpdate announces the sender's new inbound quota. The receiver applies
// it to its outbound Tracker for this link.
type QuotaUpdate struct {
	Quota flow.Rate
}

// NewQuotaUpdate creates a QuotaUpdate for the given quota.
func NewQuotaUpdate(quota flow.Rate) *QuotaUpdate {
	return &QuotaUpdate{Quota: quota}
}

func (q QuotaUpdate) Type() uint16 {
	return QUOTA_UPDATE
}

func (q QuotaUpdate) String() string {
	return fmt.Sprintf("QUOTA_UPDATE(Quota=%v)", q.Quota)
}

func (q QuotaUpdate) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, uint32(q.Quota))
}

func (q *QuotaUpdate) Unmarshal(r io.Reader) error {
	var quota uint32
	if err := binary.Read(r, binary.BigEndian, &quota); err != nil {
		return err
	}
	q.Quota = flow.Rate(quota)

	return nil
}
