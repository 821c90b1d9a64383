package booking

import (
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
)

// FindUser returns the user with the given username.
func FindUser(users []bookingapi.User, username string) (bookingapi.User, bool) {
	for _, u := range users {
		if u.Username == username {
			return u, true
		}
	}
	return bookingapi.User{}, false
}

// VisibleServices subsets the catalog for the acting user. Staff only see the
// services they are permitted to perform; everyone else sees all of them.
func VisibleServices(s tenancy.Session, services []bookingapi.Service, users []bookingapi.User) []bookingapi.Service {
	if !s.IsStaff() {
		return append([]bookingapi.Service(nil), services...)
	}
	me, ok := FindUser(users, s.Username)
	if !ok {
		return nil
	}
	out := make([]bookingapi.Service, 0, len(services))
	for _, svc := range services {
		if me.CanPerform(svc.ID) {
			out = append(out, svc)
		}
	}
	return out
}

// QualifiedStaff returns the users who can perform serviceID. Admins are left
// out when the business does not let them perform services.
func QualifiedStaff(users []bookingapi.User, serviceID string, settings bookingapi.Settings) []bookingapi.User {
	if serviceID == "" {
		return nil
	}
	out := make([]bookingapi.User, 0, len(users))
	for _, u := range users {
		if u.Role == tenancy.RoleAdmin && !settings.AdminPerformsServices {
			continue
		}
		if u.CanPerform(serviceID) {
			out = append(out, u)
		}
	}
	return out
}

func containsUser(users []bookingapi.User, username string) bool {
	_, ok := FindUser(users, username)
	return ok
}

func findService(services []bookingapi.Service, id string) (bookingapi.Service, bool) {
	for _, s := range services {
		if s.ID == id {
			return s, true
		}
	}
	return bookingapi.Service{}, false
}
