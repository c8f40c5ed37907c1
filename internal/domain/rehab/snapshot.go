package rehab

// Snapshot is a point-in-time copy of everything the store holds in memory.
type Snapshot struct {
	Users     []User           `json:"users"`
	Patients  []Patient        `json:"patients"`
	Sessions  []Session        `json:"sessions"`
	CarePlans []CarePlanRecord `json:"carePlans"`
	Stats     Overview         `json:"stats"`
	IsLoading bool             `json:"isLoading"`
	Error     string           `json:"error,omitempty"`
}

// Clone copies the top-level slices so the result can be handed out without
// exposing the original backing arrays.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Users = append([]User(nil), s.Users...)
	out.Patients = append([]Patient(nil), s.Patients...)
	out.Sessions = append([]Session(nil), s.Sessions...)
	out.CarePlans = append([]CarePlanRecord(nil), s.CarePlans...)
	if s.Stats.SessionsByStatus != nil {
		out.Stats.SessionsByStatus = make(map[string]int, len(s.Stats.SessionsByStatus))
		for k, v := range s.Stats.SessionsByStatus {
			out.Stats.SessionsByStatus[k] = v
		}
	}
	return out
}

// Buddies returns every user holding the buddy role, in snapshot order.
func (s Snapshot) Buddies() []User {
	var out []User
	for _, u := range s.Users {
		if u.IsBuddy() {
			out = append(out, u)
		}
	}
	return out
}

// UsersByRole returns the users holding role, in snapshot order.
func (s Snapshot) UsersByRole(role Role) []User {
	var out []User
	for _, u := range s.Users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out
}

func (s Snapshot) FindUser(id string) (User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (s Snapshot) FindPatient(id string) (Patient, bool) {
	for _, p := range s.Patients {
		if p.ID == id {
			return p, true
		}
	}
	return Patient{}, false
}

func (s Snapshot) FindSession(id string) (Session, bool) {
	for _, ss := range s.Sessions {
		if ss.ID == id {
			return ss, true
		}
	}
	return Session{}, false
}

// SessionsFor returns the sessions whose buddy is buddyID.
func (s Snapshot) SessionsFor(buddyID string) []Session {
	var out []Session
	for _, ss := range s.Sessions {
		if ss.BuddyID == buddyID {
			out = append(out, ss)
		}
	}
	return out
}
