// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"fmt"
	"strings"
)

// Destination URI schemes.
const (
	QueuePrefix     = "queue://"
	TopicPrefix     = "topic://"
	TempQueuePrefix = "temp-queue://"
	TempTopicPrefix = "temp-topic://"
)

// Destination is a queue or topic, possibly temporary.
type Destination interface {
	DataStructure
	fmt.Stringer
	Name() string
	IsTopic() bool
	IsTemporary() bool
}

type Queue struct{ PhysicalName string }

func NewQueue(name string) *Queue { return &Queue{PhysicalName: name} }

func (*Queue) DataStructureType() byte { return QueueType }
func (d *Queue) fields(int) []field    { return []field{stringField{&d.PhysicalName}} }
func (d *Queue) Name() string          { return d.PhysicalName }
func (*Queue) IsTopic() bool           { return false }
func (*Queue) IsTemporary() bool       { return false }
func (d *Queue) String() string        { return QueuePrefix + d.PhysicalName }

type Topic struct{ PhysicalName string }

func NewTopic(name string) *Topic { return &Topic{PhysicalName: name} }

func (*Topic) DataStructureType() byte { return TopicType }
func (d *Topic) fields(int) []field    { return []field{stringField{&d.PhysicalName}} }
func (d *Topic) Name() string          { return d.PhysicalName }
func (*Topic) IsTopic() bool           { return true }
func (*Topic) IsTemporary() bool       { return false }
func (d *Topic) String() string        { return TopicPrefix + d.PhysicalName }

type TempQueue struct{ PhysicalName string }

func (*TempQueue) DataStructureType() byte { return TempQueueType }
func (d *TempQueue) fields(int) []field    { return []field{stringField{&d.PhysicalName}} }
func (d *TempQueue) Name() string          { return d.PhysicalName }
func (*TempQueue) IsTopic() bool           { return false }
func (*TempQueue) IsTemporary() bool       { return true }
func (d *TempQueue) String() string        { return TempQueuePrefix + d.PhysicalName }

type TempTopic struct{ PhysicalName string }

func (*TempTopic) DataStructureType() byte { return TempTopicType }
func (d *TempTopic) fields(int) []field    { return []field{stringField{&d.PhysicalName}} }
func (d *TempTopic) Name() string          { return d.PhysicalName }
func (*TempTopic) IsTopic() bool           { return true }
func (*TempTopic) IsTemporary() bool       { return true }
func (d *TempTopic) String() string        { return TempTopicPrefix + d.PhysicalName }

// ParseDestination parses a prefixed destination URI. A bare name is a queue.
func ParseDestination(s string) (Destination, error) {
	var d Destination
	var name string
	switch {
	case strings.HasPrefix(s, QueuePrefix):
		name = strings.TrimPrefix(s, QueuePrefix)
		d = &Queue{PhysicalName: name}
	case strings.HasPrefix(s, TopicPrefix):
		name = strings.TrimPrefix(s, TopicPrefix)
		d = &Topic{PhysicalName: name}
	case strings.HasPrefix(s, TempQueuePrefix):
		name = strings.TrimPrefix(s, TempQueuePrefix)
		d = &TempQueue{PhysicalName: name}
	case strings.HasPrefix(s, TempTopicPrefix):
		name = strings.TrimPrefix(s, TempTopicPrefix)
		d = &TempTopic{PhysicalName: name}
	default:
		name = s
		d = &Queue{PhysicalName: name}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDestination, s)
	}
	return d, nil
}
