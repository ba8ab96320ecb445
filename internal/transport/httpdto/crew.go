package httpdto

import (
	"time"

	"upforit/internal/domain/crew"
)

type CreateCrewRequest struct {
	Name string `json:"name" binding:"required"`
}

type CrewDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CrewMembersResponse struct {
	MemberIDs []string `json:"member_ids"`
}

type SetAvailabilityRequest struct {
	UpForIt *bool `json:"up_for_it" binding:"required"`
}

type AvailabilityDTO struct {
	UserID    string    `json:"user_id"`
	UpForIt   bool      `json:"up_for_it"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	CrewID  string            `json:"crew_id"`
	Date    string            `json:"date"`
	UpCount int               `json:"up_count"`
	Members []AvailabilityDTO `json:"members"`
}

type PokeResponse struct {
	Recipients int `json:"recipients"`
	Pushes     int `json:"pushes"`
}

func FromCrew(c crew.Crew) CrewDTO {
	return CrewDTO{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID, CreatedAt: c.CreatedAt}
}

func FromCrews(cs []crew.Crew) []CrewDTO {
	out := make([]CrewDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, FromCrew(c))
	}
	return out
}

func FromAvailability(crewID, date string, flags []crew.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{CrewID: crewID, Date: date, Members: make([]AvailabilityDTO, 0, len(flags))}
	for _, a := range flags {
		if a.UpForIt {
			resp.UpCount++
		}
		resp.Members = append(resp.Members, AvailabilityDTO{UserID: a.UserID, UpForIt: a.UpForIt, UpdatedAt: a.UpdatedAt})
	}
	return resp
}
