/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import "time"

// AuditFields is embedded by every record. Bun inlines the columns into the
// owning table; entities carry a Clone of it.
type AuditFields struct {
	CreatedBy  string     `bun:"created_by,notnull,default:''" json:"createdBy"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	ModifiedBy string     `bun:"modified_by,notnull,default:''" json:"modifiedBy"`
	ModifiedAt time.Time  `bun:"modified_at,nullzero,notnull,default:current_timestamp" json:"modifiedAt"`
	Deleted    bool       `bun:"deleted,notnull,default:false" json:"deleted"`
	DeletedBy  string     `bun:"deleted_by,notnull,default:''" json:"deletedBy,omitempty"`
	DeletedAt  *time.Time `bun:"deleted_at" json:"deletedAt,omitempty"`
}

// Auditable is implemented by any record embedding AuditFields.
type Auditable interface {
	Audit() *AuditFields
}

// Audit returns the receiver so embedding records satisfy Auditable.
func (a *AuditFields) Audit() *AuditFields { return a }

// StampCreated sets creator and modifier fields for an insert.
func (a *AuditFields) StampCreated(actor string, now time.Time) {
	a.CreatedBy = actor
	a.CreatedAt = now
	a.ModifiedBy = actor
	a.ModifiedAt = now
}

// StampModified sets modifier fields for an update.
func (a *AuditFields) StampModified(actor string, now time.Time) {
	a.ModifiedBy = actor
	a.ModifiedAt = now
}

// Clone copies the audit fields without sharing the DeletedAt pointer.
func (a AuditFields) Clone() AuditFields {
	out := a
	if a.DeletedAt != nil {
		at := *a.DeletedAt
		out.DeletedAt = &at
	}
	return out
}
