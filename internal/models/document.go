package models

import (
	"encoding/json"
	"fmt"
)

// MarshalDocument encodes a session as the persisted JSON document. Nil maps
// and slices are written as empty objects and arrays.
func MarshalDocument(s Session) ([]byte, error) {
	data, err := json.Marshal(normalize(s.Clone()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode session document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument decodes a persisted JSON document.
func UnmarshalDocument(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session document: %w", err)
	}
	return normalize(s), nil
}

func normalize(s Session) Session {
	if s.Diners == nil {
		s.Diners = []Diner{}
	}
	for i := range s.Diners {
		if s.Diners[i].SelectedItems == nil {
			s.Diners[i].SelectedItems = []LineItem{}
		}
	}
	if s.AvailableProducts == nil {
		s.AvailableProducts = Catalog{}
	}
	if s.MasterProducts == nil {
		s.MasterProducts = Catalog{}
	}
	if s.SharedInstances == nil {
		s.SharedInstances = ShareGroups{}
	}
	for id, members := range s.SharedInstances {
		if members == nil {
			s.SharedInstances[id] = []string{}
		}
	}
	return s
}
