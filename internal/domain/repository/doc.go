// Package repository define el modelo de dominio del pipeline de autorización
// (providers, applications, policies, scope mappings, flows, usuarios y consents)
// y las interfaces de persistencia que implementan los stores.
//
// Los tipos son valores planos: la configuración se carga una vez en un snapshot
// inmutable (ver controlplane) y nunca se muta durante un request.
package repository
